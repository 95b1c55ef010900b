package model

import "time"

// ── Storage Port Interfaces ──
// These interfaces decouple engine logic from concrete storage
// implementations (SQLite, Redis, in-memory). The annotation engine
// depends only on KVStore.

// KVStore is a namespaced key-value persistence port. Implementations are
// best-effort: callers treat read/write failures as non-fatal and keep the
// in-memory state authoritative for the session.
type KVStore interface {
	// Get returns the serialized value for key, or nil if absent.
	Get(key string) ([]byte, error)

	// Set stores the serialized value under key.
	Set(key string, value []byte) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error

	// Close releases underlying resources.
	Close() error
}

// TimeRange is a visible time window on a chart pane.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// IsZero reports whether the range is unset.
func (r TimeRange) IsZero() bool {
	return r.From.IsZero() && r.To.IsZero()
}
