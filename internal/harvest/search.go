package harvest

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// ListingConfig carries the provider-specific shape of a search results page.
type ListingConfig struct {
	// BaseURL is the search endpoint, e.g. "https://www.bing.com/search".
	BaseURL string
	// PageSize is the number of organic results one page carries.
	PageSize int
	// ResultSelector matches one organic result entry.
	ResultSelector string
	// TitleSelector matches the linked title anchor inside an entry.
	TitleSelector string
	// SnippetSelector matches the snippet text inside an entry.
	SnippetSelector string
	// BlockedHosts lists hosts (and implicitly their subdomains) whose
	// entries are dropped, typically the provider's own redirect domains.
	BlockedHosts []string
}

// ListingFetcher retrieves search-results pages and turns them into records.
// Parsing is tolerant: a malformed entry is skipped, never fatal. Only the
// page fetch itself and registry failures surface as errors.
type ListingFetcher struct {
	fetcher   Fetcher
	relevance Relevance
	blocklist *hostBlocklist
	cfg       ListingConfig
	logger    *zap.Logger
}

// NewListingFetcher builds a ListingFetcher. The relevance policy must not
// be nil; pass policy/keyword's implementation for the default behavior.
func NewListingFetcher(fetcher Fetcher, relevance Relevance, cfg ListingConfig, logger *zap.Logger) *ListingFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListingFetcher{
		fetcher:   fetcher,
		relevance: relevance,
		blocklist: newHostBlocklist(cfg.BlockedHosts),
		cfg:       cfg,
		logger:    logger,
	}
}

// PageURL builds the listing URL for a query and 1-based page number. The
// offset parameter is always present, so page 1 carries "first=1"; result
// pages stay cache-distinct and reproducible from logs.
func (f *ListingFetcher) PageURL(query string, page int) string {
	u, err := url.Parse(f.cfg.BaseURL)
	if err != nil {
		// Config validation rejects unparseable base URLs; keep a sane
		// fallback for direct construction in tests.
		u = &url.URL{Scheme: "https", Host: "www.bing.com", Path: "/search"}
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("first", strconv.Itoa((page-1)*f.cfg.PageSize+1))
	u.RawQuery = q.Encode()
	return u.String()
}

// FetchPage retrieves one search-results page and returns its new records in
// page order. Entries missing a link or title, entries on blocked hosts,
// entries failing the relevance policy, and entries already in the registry
// are skipped. Every returned record has been added to the registry.
func (f *ListingFetcher) FetchPage(ctx context.Context, query string, page int, reg Registry) ([]Record, error) {
	pageURL := f.PageURL(query, page)
	resp, err := f.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		ListingPagesTotal.WithLabelValues("error").Inc()
		return nil, &ListingError{Query: query, Page: page, Err: err}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		ListingPagesTotal.WithLabelValues("error").Inc()
		return nil, &ListingError{Query: query, Page: page, Err: fmt.Errorf("parse listing: %w", err)}
	}
	ListingPagesTotal.WithLabelValues("ok").Inc()

	var (
		records []Record
		regErr  error
	)
	doc.Find(f.cfg.ResultSelector).EachWithBreak(func(i int, sel *goquery.Selection) bool {
		anchor := sel.Find(f.cfg.TitleSelector).First()
		title := strings.TrimSpace(anchor.Text())
		href := strings.TrimSpace(anchor.AttrOr("href", ""))
		if title == "" || href == "" {
			ListingEntriesTotal.WithLabelValues(dispositionMissing).Inc()
			return true
		}
		link, err := url.Parse(href)
		if err != nil {
			ListingEntriesTotal.WithLabelValues(dispositionBadURL).Inc()
			f.logger.Debug("skipping entry with unparseable link",
				zap.String("query", query), zap.Int("page", page), zap.String("href", href))
			return true
		}
		if f.blocklist.Blocked(link.Host) {
			ListingEntriesTotal.WithLabelValues(dispositionBlocked).Inc()
			return true
		}
		snippet := strings.TrimSpace(sel.Find(f.cfg.SnippetSelector).First().Text())
		if !f.relevance.Relevant(query, title, snippet) {
			ListingEntriesTotal.WithLabelValues(dispositionIrrelevant).Inc()
			return true
		}
		id := RecordID(href)
		seen, err := reg.Contains(ctx, id)
		if err != nil {
			regErr = fmt.Errorf("registry lookup: %w", err)
			return false
		}
		if seen {
			ListingEntriesTotal.WithLabelValues(dispositionDuplicate).Inc()
			return true
		}
		if err := reg.Add(ctx, id); err != nil {
			regErr = fmt.Errorf("registry add: %w", err)
			return false
		}
		ListingEntriesTotal.WithLabelValues(dispositionKept).Inc()
		records = append(records, Record{
			RecordID: id,
			Query:    query,
			Title:    title,
			URL:      href,
			Snippet:  snippet,
			Page:     page,
		})
		return true
	})
	if regErr != nil {
		return nil, &ListingError{Query: query, Page: page, Err: regErr}
	}
	f.logger.Debug("listing page parsed",
		zap.String("query", query),
		zap.Int("page", page),
		zap.Int("new_records", len(records)))
	return records, nil
}
