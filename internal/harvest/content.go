package harvest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// errRobotsDisallowed marks a URL the site's robots.txt forbids.
var errRobotsDisallowed = errors.New("disallowed by robots.txt")

// ContentFetcherConfig holds the per-attempt settings for content fetching.
type ContentFetcherConfig struct {
	// RequestTimeout bounds one fetch attempt. A timed-out attempt is a
	// transient failure and stays eligible for retry.
	RequestTimeout time.Duration
}

// ContentFetcher retrieves the full text behind one record's URL and hands it
// to the content sink. Retries, politeness, robots checks, and optional
// render promotion all live here so the orchestrator can treat a record as a
// single fetch-or-fail unit.
type ContentFetcher struct {
	cfg      ContentFetcherConfig
	fetcher  Fetcher
	renderer Renderer
	detector RenderDetector
	robots   RobotsPolicy
	limiter  HostLimiter
	policy   RetryPolicy
	clock    Clock
	sink     ContentSink
	logger   *zap.Logger
}

// NewContentFetcher creates a ContentFetcher. renderer, detector, robots, and
// limiter may be nil; the corresponding step is skipped.
func NewContentFetcher(
	cfg ContentFetcherConfig,
	fetcher Fetcher,
	renderer Renderer,
	detector RenderDetector,
	robots RobotsPolicy,
	limiter HostLimiter,
	policy RetryPolicy,
	clock Clock,
	sink ContentSink,
	logger *zap.Logger,
) *ContentFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContentFetcher{
		cfg:      cfg,
		fetcher:  fetcher,
		renderer: renderer,
		detector: detector,
		robots:   robots,
		limiter:  limiter,
		policy:   policy,
		clock:    clock,
		sink:     sink,
		logger:   logger,
	}
}

// FetchContent fetches rec's URL, extracts its visible text, and stores it
// under the record id. It returns nil after exactly one successful Store, a
// *ContentError classifying the failure otherwise. Empty extracted text and
// robots denials are terminal; transport failures back off and retry until
// the policy gives up. Run-context cancellation stops the loop immediately.
func (f *ContentFetcher) FetchContent(ctx context.Context, rec Record) error {
	host := hostOf(rec.URL)
	promoted := false

	for attempt := 1; ; attempt++ {
		if f.robots != nil && !f.robots.Allowed(ctx, rec.URL) {
			ContentFetchesTotal.WithLabelValues(string(ContentBlocked)).Inc()
			return &ContentError{
				Kind:     ContentBlocked,
				RecordID: rec.RecordID,
				URL:      rec.URL,
				Attempts: attempt,
				Err:      errRobotsDisallowed,
			}
		}
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, host); err != nil {
				return fmt.Errorf("politeness wait for %s: %w", host, err)
			}
		}

		text, attemptErr := f.attempt(ctx, rec, &promoted)
		if attemptErr == nil {
			if text == "" {
				ContentFetchesTotal.WithLabelValues(string(ContentEmpty)).Inc()
				return &ContentError{
					Kind:     ContentEmpty,
					RecordID: rec.RecordID,
					URL:      rec.URL,
					Attempts: attempt,
					Err:      ErrEmptyContent,
				}
			}
			if err := f.sink.Store(ctx, rec.RecordID, rec.Query, text); err != nil {
				attemptErr = fmt.Errorf("store content: %w", err)
			} else {
				ContentFetchesTotal.WithLabelValues("stored").Inc()
				return nil
			}
		}

		// A canceled run ends the loop no matter what the policy says; a
		// per-attempt timeout alone stays retryable.
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("content fetch %s: %w", rec.RecordID, err)
		}
		if !f.policy.ShouldRetry(attemptErr, attempt) {
			ContentFetchesTotal.WithLabelValues(string(ContentTransient)).Inc()
			return &ContentError{
				Kind:     ContentTransient,
				RecordID: rec.RecordID,
				URL:      rec.URL,
				Attempts: attempt,
				Err:      attemptErr,
			}
		}
		backoff := f.policy.Backoff(attempt)
		ContentRetriesTotal.Inc()
		f.logger.Debug("content fetch retry",
			zap.String("record_id", rec.RecordID),
			zap.String("url", rec.URL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(attemptErr))
		if err := f.clock.Sleep(ctx, backoff); err != nil {
			return fmt.Errorf("content fetch %s: %w", rec.RecordID, err)
		}
	}
}

// attempt performs one fetch-extract pass. It returns the extracted text
// (possibly empty) or a transient error.
func (f *ContentFetcher) attempt(ctx context.Context, rec Record, promoted *bool) (string, error) {
	attemptCtx := ctx
	cancel := context.CancelFunc(func() {})
	if f.cfg.RequestTimeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, f.cfg.RequestTimeout)
	}
	defer cancel()

	resp, err := f.fetcher.Fetch(attemptCtx, rec.URL)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rec.URL, err)
	}

	if !*promoted && f.renderer != nil && f.detector != nil && f.detector.ShouldPromote(resp) {
		*promoted = true
		rendered, rerr := f.renderer.Render(attemptCtx, rec.URL)
		if rerr != nil {
			// The static body is still usable; rendering is an upgrade,
			// not a requirement.
			f.logger.Warn("render promotion failed, using static body",
				zap.String("url", rec.URL), zap.Error(rerr))
		} else {
			resp = rendered
		}
	}

	text, err := ExtractText(resp.Body)
	if err != nil {
		return "", fmt.Errorf("extract text from %s: %w", rec.URL, err)
	}
	return text, nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
