package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Entry is one cached snapshot.
type Entry struct {
	// Data is the JSON encoded value.
	Data json.RawMessage `json:"data"`

	// Expires is when the snapshot becomes stale.
	Expires time.Time `json:"expires"`

	// CachedAt is when the snapshot was stored.
	CachedAt time.Time `json:"cached_at"`
}

// NewEntry encodes v into an entry that stays fresh for ttl.
func NewEntry(v any, ttl time.Duration) (*Entry, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal cache value: %w", err)
	}
	now := time.Now()
	return &Entry{
		Data:     data,
		Expires:  now.Add(ttl),
		CachedAt: now,
	}, nil
}

// Decode unmarshals the snapshot into v. Numbers decode as json.Number when v
// holds interface values.
func (e *Entry) Decode(v any) error {
	dec := json.NewDecoder(bytes.NewReader(e.Data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return nil
}

// IsExpired returns true if the cache entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Age returns how long ago the snapshot was stored.
func (e *Entry) Age() time.Duration {
	return time.Since(e.CachedAt)
}
