package token

import (
	"context"
	"log/slog"
	"strings"
)

// Descriptor is one externally sourced token in a sync batch. Pointer fields
// distinguish "absent" from zero values: only fields present in the payload
// are applied to tokens already known locally.
type Descriptor struct {
	Token       string  `json:"token"`
	CreatedAt   *string `json:"created_at,omitempty"`
	ExpiresAt   *string `json:"expires_at,omitempty"`
	Active      *bool   `json:"active,omitempty"`
	Description *string `json:"description,omitempty"`
	UsedCount   *int64  `json:"used_count,omitempty"`
}

// SyncResult reports what a batch did.
type SyncResult struct {
	Processed int `json:"processed"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"`
}

// ApplyBatch folds externally sourced descriptors into the store. Unknown
// tokens are inserted from the descriptor's fields; known tokens only take
// the active flag and description, so locally tracked usage counters and
// timestamps survive every sync. Malformed descriptors are skipped without
// aborting the batch. The snapshot is written once for the whole batch to
// bound write amplification.
func (m *Manager) ApplyBatch(ctx context.Context, batch []Descriptor) SyncResult {
	var res SyncResult
	for _, desc := range batch {
		switch m.applyDescriptor(ctx, desc) {
		case syncCreated:
			res.Created++
			res.Processed++
			m.metrics.recordSyncEntry(ctx, "created")
		case syncUpdated:
			res.Updated++
			res.Processed++
			m.metrics.recordSyncEntry(ctx, "updated")
		case syncSkipped:
			res.Skipped++
			m.metrics.recordSyncEntry(ctx, "skipped")
		}
	}

	m.logger.InfoContext(ctx, "sync batch applied",
		slog.Int("processed", res.Processed),
		slog.Int("created", res.Created),
		slog.Int("updated", res.Updated),
		slog.Int("skipped", res.Skipped))

	m.persistSnapshot(ctx)
	return res
}

type syncOutcome int

const (
	syncSkipped syncOutcome = iota
	syncCreated
	syncUpdated
)

func (m *Manager) applyDescriptor(ctx context.Context, desc Descriptor) syncOutcome {
	tok := strings.TrimSpace(desc.Token)
	if tok == "" {
		m.logger.WarnContext(ctx, "sync entry skipped: missing token string")
		return syncSkipped
	}

	// Known token: local usage history is the source of truth, only the
	// activation flag and description follow the feed.
	updated := m.store.Update(tok, func(rec *Record) {
		if desc.Active != nil {
			rec.Active = *desc.Active
		}
		if desc.Description != nil {
			rec.Description = *desc.Description
		}
	})
	if updated {
		return syncUpdated
	}

	createdAt, err := parseTimestampPtr(desc.CreatedAt)
	if err != nil {
		m.logger.WarnContext(ctx, "sync entry skipped: bad created_at",
			slog.String("error", err.Error()))
		return syncSkipped
	}
	expiresAt, err := parseTimestampPtr(desc.ExpiresAt)
	if err != nil {
		m.logger.WarnContext(ctx, "sync entry skipped: bad expires_at",
			slog.String("error", err.Error()))
		return syncSkipped
	}

	rec := &Record{
		CreatedAt: m.now(),
		ExpiresAt: expiresAt,
		Active:    true,
	}
	if createdAt != nil {
		rec.CreatedAt = *createdAt
	}
	if desc.Active != nil {
		rec.Active = *desc.Active
	}
	if desc.Description != nil {
		rec.Description = *desc.Description
	}
	if desc.UsedCount != nil {
		rec.UsedCount = *desc.UsedCount
	}

	if !m.store.PutIfAbsent(tok, rec) {
		// Raced with a concurrent create of the same token; treat the
		// existing record as the known-token path would.
		m.store.Update(tok, func(rec *Record) {
			if desc.Active != nil {
				rec.Active = *desc.Active
			}
			if desc.Description != nil {
				rec.Description = *desc.Description
			}
		})
		return syncUpdated
	}
	return syncCreated
}
