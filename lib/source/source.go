// Package source defines the capabilities the collection engine consumes:
// an opaque session against the protected remote and a cursor-paginated
// page fetch. Concrete implementations live under lib/scrapers.
package source

import (
	"context"
	"encoding/json"
	"fmt"
)

// Page is one hop of a cursor-paginated fetch. An empty NextToken (or an
// empty item batch) means the remote has no more data for this unit.
type Page struct {
	Items     []json.RawMessage
	NextToken string
	// Total is the remote's reported row count, when it sends one. 0 if unknown.
	Total int
}

// Session is an established, time-limited capability against the remote.
// It is an explicit value: callers pass it around, refresh it between retry
// attempts and close it when the batch is over. Never a hidden singleton.
type Session interface {
	// FetchPage retrieves one page of sub-records for a work unit.
	// Failures are reported as errors (*FetchError when the remote answered
	// with a status); "no more data" is a successful Page with an empty
	// NextToken.
	FetchPage(ctx context.Context, unitID, token string) (Page, error)
	// Refresh re-establishes the remote's trust in this session without
	// discarding it (re-navigation on the same cookie jar).
	Refresh(ctx context.Context) error
	Close()
}

// Provider establishes fresh sessions. Establishment failure is fatal to the
// batch that wanted the session.
type Provider interface {
	Establish(ctx context.Context) (Session, error)
}

// FetchError is a failed page fetch where the remote (or transport) gave us
// something to report. Distinguished from "no more data" by existing at all.
type FetchError struct {
	HTTPStatus int
	Message    string
}

func (e *FetchError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("fetch failed: HTTP %d: %s", e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("fetch failed: %s", e.Message)
}

// SessionError wraps a failure to establish or refresh a session. The batch
// session manager treats it as fatal to the whole batch.
type SessionError struct {
	Op  string
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s: %s", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}
