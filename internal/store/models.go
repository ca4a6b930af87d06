package store

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("store: configuration not found")
	ErrStaleRevision = errors.New("store: stale revision")
)

// ConfigRecord is one stored dashboard document. Document is kept as the raw
// JSON the service wrote; Revision mirrors the document's revision so writes
// can be ordered without decoding it.
type ConfigRecord struct {
	SessionID string
	Document  json.RawMessage
	Revision  int64
	UpdatedAt time.Time
}
