package harvest

import (
	"errors"
	"fmt"
)

// ErrEmptyContent marks a page that answered but produced no extractable
// text. It is terminal: retrying will not make an empty page non-empty.
var ErrEmptyContent = errors.New("no extractable page content")

// ListingError reports a failed search-results page fetch or parse. The
// orchestrator logs it and moves on; one bad page never aborts a query.
type ListingError struct {
	Query string
	Page  int
	Err   error
}

func (e *ListingError) Error() string {
	return fmt.Sprintf("listing fetch for %q page %d: %v", e.Query, e.Page, e.Err)
}

func (e *ListingError) Unwrap() error { return e.Err }

// ContentErrorKind classifies content-fetch failures; the kind decides
// whether another attempt is worthwhile.
type ContentErrorKind string

const (
	// ContentTransient covers network and timeout failures, retried with backoff.
	ContentTransient ContentErrorKind = "transient"
	// ContentEmpty covers pages with no extractable text, never retried.
	ContentEmpty ContentErrorKind = "empty"
	// ContentBlocked covers robots.txt denials, never retried.
	ContentBlocked ContentErrorKind = "blocked"
)

// ContentError reports a failed content fetch after all eligible attempts.
type ContentError struct {
	Kind     ContentErrorKind
	RecordID string
	URL      string
	Attempts int
	Err      error
}

func (e *ContentError) Error() string {
	return fmt.Sprintf("content fetch %s (%s) after %d attempt(s): %s: %v",
		e.RecordID, e.Kind, e.Attempts, e.URL, e.Err)
}

func (e *ContentError) Unwrap() error { return e.Err }

// Terminal reports whether further attempts are pointless.
func (e *ContentError) Terminal() bool { return e.Kind != ContentTransient }

// PersistError reports a failed batch upsert. The run continues; fetched
// data still flows to export and content phases.
type PersistError struct {
	Count int
	Err   error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist batch of %d record(s): %v", e.Count, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }
