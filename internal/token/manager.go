package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// ErrDuplicateToken is returned when creating a token whose explicit string
// already exists in the store. No state changes when it is returned.
var ErrDuplicateToken = errors.New("token already exists")

// Validation failure reasons. Validation fails closed: any token not
// affirmatively known, active, and unexpired is rejected.
const (
	ReasonNotFound    = "not found"
	ReasonDeactivated = "deactivated"
	ReasonExpired     = "expired"
)

// generatedTokenBytes gives generated tokens 128 bits of entropy.
const generatedTokenBytes = 16

// CreateRequest describes a token to create. DaysValid takes precedence over
// HoursValid when both are set; both zero means the token never expires.
type CreateRequest struct {
	Token       string
	DaysValid   int
	HoursValid  int
	Description string
}

// Info is the externally visible view of a token record.
type Info struct {
	Token         string     `json:"token"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     *time.Time `json:"expires_at"`
	Active        bool       `json:"active"`
	Description   string     `json:"description"`
	UsedCount     int64      `json:"used_count"`
	LastUsed      *time.Time `json:"last_used"`
	TimeRemaining string     `json:"time_remaining,omitempty"`
}

// Manager implements the token lifecycle rules: creation, validation with
// usage accounting, activation state changes, deletion, and expiry
// computation. Every successful mutation triggers a snapshot write through
// the Persister; snapshot failures never fail the triggering operation.
type Manager struct {
	store     *Store
	persister *Persister
	logger    *slog.Logger
	metrics   *Metrics

	// now is a seam for expiry tests.
	now func() time.Time
}

// NewManager creates a manager over store, persisting through persister.
// metrics may be nil.
func NewManager(store *Store, persister *Persister, logger *slog.Logger, metrics *Metrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:     store,
		persister: persister,
		logger:    logger.With(slog.String("component", "token_manager")),
		metrics:   metrics,
		now:       time.Now,
	}
}

// Store exposes the underlying store for read-only callers such as the
// health handler.
func (m *Manager) Store() *Store {
	return m.store
}

// Create adds a new token. An empty req.Token generates a random token with
// 128 bits of entropy; an explicit one must not already exist. Returns the
// token string actually stored.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (string, error) {
	now := m.now()

	var expiresAt *time.Time
	switch {
	case req.DaysValid > 0:
		t := now.Add(time.Duration(req.DaysValid) * 24 * time.Hour)
		expiresAt = &t
	case req.HoursValid > 0:
		t := now.Add(time.Duration(req.HoursValid) * time.Hour)
		expiresAt = &t
	}

	rec := &Record{
		CreatedAt:   now,
		ExpiresAt:   expiresAt,
		Active:      true,
		Description: req.Description,
	}

	tok := strings.TrimSpace(req.Token)
	if tok != "" {
		if !m.store.PutIfAbsent(tok, rec) {
			return "", fmt.Errorf("%w: %s", ErrDuplicateToken, tok)
		}
	} else {
		var err error
		if tok, err = m.insertGenerated(rec); err != nil {
			return "", err
		}
	}

	m.metrics.recordCreated(ctx)
	m.logger.InfoContext(ctx, "token created",
		slog.Bool("generated", req.Token == ""),
		slog.Bool("expires", expiresAt != nil),
		slog.Int("store_size", m.store.Len()))
	m.persistSnapshot(ctx)
	return tok, nil
}

// insertGenerated draws random tokens until one is free. A collision on 128
// random bits essentially never happens, the loop only guards against it.
func (m *Manager) insertGenerated(rec *Record) (string, error) {
	for {
		buf := make([]byte, generatedTokenBytes)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate token: %w", err)
		}
		tok := hex.EncodeToString(buf)
		if m.store.PutIfAbsent(tok, rec) {
			return tok, nil
		}
	}
}

// Validate checks whether token currently grants access. On success it
// increments the usage counter, stamps last_used, and persists; the counter
// update and timestamp are applied atomically under the store's write lock.
// On failure it returns the reason and leaves the record untouched.
func (m *Manager) Validate(ctx context.Context, tok string) (bool, string) {
	start := m.now()
	now := start

	var reason string
	ok := m.store.Update(tok, func(rec *Record) {
		switch {
		case !rec.Active:
			reason = ReasonDeactivated
		case rec.Expired(now):
			reason = ReasonExpired
		default:
			rec.UsedCount++
			t := now
			rec.LastUsed = &t
		}
	})
	if !ok {
		reason = ReasonNotFound
	}

	if reason != "" {
		m.metrics.recordValidation(ctx, reason, time.Since(start))
		m.logger.InfoContext(ctx, "token rejected", slog.String("reason", reason))
		return false, reason
	}

	m.metrics.recordValidation(ctx, "valid", time.Since(start))
	m.persistSnapshot(ctx)
	return true, ""
}

// Deactivate marks the token inactive, reporting whether it exists.
func (m *Manager) Deactivate(ctx context.Context, tok string) bool {
	return m.setActive(ctx, tok, false)
}

// Activate marks the token active, reporting whether it exists.
func (m *Manager) Activate(ctx context.Context, tok string) bool {
	return m.setActive(ctx, tok, true)
}

func (m *Manager) setActive(ctx context.Context, tok string, active bool) bool {
	ok := m.store.Update(tok, func(rec *Record) {
		rec.Active = active
	})
	if !ok {
		return false
	}
	m.logger.InfoContext(ctx, "token activation changed", slog.Bool("active", active))
	m.persistSnapshot(ctx)
	return true
}

// Delete removes the token, reporting whether it existed.
func (m *Manager) Delete(ctx context.Context, tok string) bool {
	if !m.store.Delete(tok) {
		return false
	}
	m.metrics.recordDeleted(ctx)
	m.logger.InfoContext(ctx, "token deleted", slog.Int("store_size", m.store.Len()))
	m.persistSnapshot(ctx)
	return true
}

// Get returns the token's info, or false if it is unknown.
func (m *Manager) Get(tok string) (Info, bool) {
	rec, ok := m.store.Get(tok)
	if !ok {
		return Info{}, false
	}
	return m.info(tok, rec), true
}

// List returns info for every token. With activeOnly set, deactivated and
// expired tokens are filtered out. Ordering is by token string purely for
// stable output; callers must not rely on it surviving reloads.
func (m *Manager) List(activeOnly bool) []Info {
	now := m.now()
	snapshot := m.store.Snapshot()

	out := make([]Info, 0, len(snapshot))
	for tok, rec := range snapshot {
		if activeOnly && (!rec.Active || rec.Expired(now)) {
			continue
		}
		out = append(out, m.info(tok, rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out
}

func (m *Manager) info(tok string, rec *Record) Info {
	return Info{
		Token:         tok,
		CreatedAt:     rec.CreatedAt,
		ExpiresAt:     rec.ExpiresAt,
		Active:        rec.Active,
		Description:   rec.Description,
		UsedCount:     rec.UsedCount,
		LastUsed:      rec.LastUsed,
		TimeRemaining: m.describeRemaining(rec),
	}
}

// TimeRemaining describes how long the token stays valid, or false if the
// token is unknown.
func (m *Manager) TimeRemaining(tok string) (string, bool) {
	rec, ok := m.store.Get(tok)
	if !ok {
		return "", false
	}
	return m.describeRemaining(rec), true
}

func (m *Manager) describeRemaining(rec *Record) string {
	if rec.ExpiresAt == nil {
		return "unlimited"
	}
	now := m.now()
	if now.After(*rec.ExpiresAt) {
		return "expired"
	}

	delta := rec.ExpiresAt.Sub(now)
	days := int(delta / (24 * time.Hour))
	hours := int(delta/time.Hour) % 24
	minutes := int(delta/time.Minute) % 60

	var parts []string
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	// Minutes are noise once at least a full day remains.
	if minutes > 0 && days == 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if len(parts) == 0 {
		return "less than a minute"
	}
	return strings.Join(parts, ", ")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// Flush writes the current store content to the snapshot immediately. Called
// at shutdown so usage counters recorded since the last mutation-driven save
// are not lost.
func (m *Manager) Flush(ctx context.Context) error {
	if m.persister == nil {
		return nil
	}
	return m.persister.Save(ctx, m.store.Snapshot())
}

// persistSnapshot writes the current store content through the persister.
// It runs after the mutation lock is released; a crash in between may lose
// the last mutation, an accepted durability trade-off.
func (m *Manager) persistSnapshot(ctx context.Context) {
	if m.persister == nil {
		return
	}
	if err := m.persister.Save(ctx, m.store.Snapshot()); err != nil {
		m.metrics.recordSnapshotFailure(ctx)
	}
}
