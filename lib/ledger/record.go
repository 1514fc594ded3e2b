// Package ledger implements the append-only JSONL progress ledger that makes
// collection runs resumable. One record per work unit per attempt, flushed to
// disk per line; the last occurrence of a unit id in file order is the
// authoritative one.
package ledger

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

type Record struct {
	UnitID string `json:"unit_id"`
	Name   string `json:"name,omitempty"`
	Role   string `json:"role,omitempty"`
	Status Status `json:"status"`
	// Payload holds the fetched items in the order the remote yielded them.
	// Items are kept opaque: the engine counts them, it never interprets them.
	Payload      []json.RawMessage `json:"payload"`
	ItemCount    int               `json:"item_count"`
	ErrorMessage string            `json:"error_message,omitempty"`
	HTTPStatus   int               `json:"http_status,omitempty"`
	AttemptCount int               `json:"attempt_count"`
	Retried      bool              `json:"retried,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}
