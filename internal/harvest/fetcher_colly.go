package harvest

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// FetcherConfig carries the outbound request knobs for one CollyFetcher.
// Listing and content fetches get separately configured instances.
type FetcherConfig struct {
	UserAgent      string
	AcceptLanguage string
	RequestTimeout time.Duration
	Concurrency    int
	MaxBodyBytes   int
}

// CollyFetcher implements the Fetcher interface using the Colly collector.
type CollyFetcher struct {
	baseCollector *colly.Collector
	acceptLang    string
	logger        *zap.Logger
}

// NewCollyFetcher constructs a configured Colly-based Fetcher.
func NewCollyFetcher(cfg FetcherConfig, logger *zap.Logger) (*CollyFetcher, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	opts := []colly.CollectorOption{
		colly.Async(true),
		colly.UserAgent(cfg.UserAgent),
	}
	base := colly.NewCollector(opts...)
	// Retries and repeated runs revisit the same URL on purpose; dedup is
	// the registry's job, not the transport's.
	base.AllowURLRevisit = true
	if cfg.MaxBodyBytes > 0 {
		base.MaxBodySize = cfg.MaxBodyBytes
	}
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          128,
		MaxIdleConnsPerHost:   32,
		MaxConnsPerHost:       cfg.Concurrency * 2,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.RequestTimeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(cfg.RequestTimeout)

	if err := base.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Concurrency,
	}); err != nil {
		return nil, err
	}

	return &CollyFetcher{
		baseCollector: base,
		acceptLang:    cfg.AcceptLanguage,
		logger:        logger,
	}, nil
}

// Fetch retrieves a page via the configured Colly collector.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) (FetchResponse, error) {
	collector := f.baseCollector.Clone()
	resultCh := make(chan fetchResult, 1)
	var once sync.Once
	send := func(res fetchResult) {
		once.Do(func() {
			resultCh <- res
		})
	}

	start := time.Now()
	collector.OnRequest(func(r *colly.Request) {
		if f.acceptLang != "" {
			r.Headers.Set("Accept-Language", f.acceptLang)
		}
	})

	collector.OnResponse(func(r *colly.Response) {
		headers := http.Header{}
		if r.Headers != nil {
			for k, v := range *r.Headers {
				cp := make([]string, len(v))
				copy(cp, v)
				headers[k] = cp
			}
		}
		resp := FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte{}, r.Body...),
			Duration:   time.Since(start),
		}
		send(fetchResult{resp: resp})
	})

	collector.OnError(func(_ *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		send(fetchResult{err: err})
	})

	if err := collector.Visit(rawURL); err != nil {
		return FetchResponse{}, err
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		if err := ctx.Err(); err != nil {
			return FetchResponse{}, err
		}
		return res.resp, res.err
	default:
		return FetchResponse{}, errors.New("colly fetch produced no result")
	}
}

type fetchResult struct {
	resp FetchResponse
	err  error
}
