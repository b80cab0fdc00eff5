package token

import (
	"fmt"
	"time"
)

// Record is the authoritative state tracked for a single token. The token
// string itself is the map key in the Store and is not duplicated here.
type Record struct {
	CreatedAt   time.Time
	ExpiresAt   *time.Time // nil means the token never expires
	Active      bool
	Description string
	UsedCount   int64
	LastUsed    *time.Time
}

// Expired reports whether the record's expiry is in the past relative to now.
// A record without an expiry never expires.
func (r *Record) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// Clone returns a deep copy of the record so callers can read it without
// holding the store lock.
func (r *Record) Clone() *Record {
	c := *r
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		c.ExpiresAt = &t
	}
	if r.LastUsed != nil {
		t := *r.LastUsed
		c.LastUsed = &t
	}
	return &c
}

// wireRecord is the snapshot representation of a Record. Timestamps cross
// this boundary as RFC 3339 strings; everything inside the process uses
// time.Time. The same shape is used for the on-disk file, the environment
// snapshot, and sync batch entries.
type wireRecord struct {
	CreatedAt   string  `json:"created_at"`
	ExpiresAt   *string `json:"expires_at"`
	Active      bool    `json:"active"`
	Description string  `json:"description"`
	UsedCount   int64   `json:"used_count"`
	LastUsed    *string `json:"last_used"`
}

func encodeTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func encodeTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := encodeTime(*t)
	return &s
}

// parseTimestamp accepts RFC 3339 with or without sub-second precision and,
// for compatibility with older snapshots, a bare local timestamp.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", s)
}

func parseTimestampPtr(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := parseTimestamp(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// toWire converts a record into its snapshot form.
func (r *Record) toWire() wireRecord {
	return wireRecord{
		CreatedAt:   encodeTime(r.CreatedAt),
		ExpiresAt:   encodeTimePtr(r.ExpiresAt),
		Active:      r.Active,
		Description: r.Description,
		UsedCount:   r.UsedCount,
		LastUsed:    encodeTimePtr(r.LastUsed),
	}
}

// toRecord converts a snapshot entry back into a Record.
func (w wireRecord) toRecord() (*Record, error) {
	createdAt, err := parseTimestamp(w.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	expiresAt, err := parseTimestampPtr(w.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("expires_at: %w", err)
	}
	lastUsed, err := parseTimestampPtr(w.LastUsed)
	if err != nil {
		return nil, fmt.Errorf("last_used: %w", err)
	}
	return &Record{
		CreatedAt:   createdAt,
		ExpiresAt:   expiresAt,
		Active:      w.Active,
		Description: w.Description,
		UsedCount:   w.UsedCount,
		LastUsed:    lastUsed,
	}, nil
}
