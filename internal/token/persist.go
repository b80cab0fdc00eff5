package token

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Snapshot load sources, reported so operators can tell where the initial
// token set came from.
const (
	SourceEnv   = "env"
	SourceFile  = "file"
	SourceEmpty = "empty"
)

// defaultSaveTimeout bounds how long a mutation waits on the snapshot write
// before treating it as a soft failure. The write itself keeps running.
const defaultSaveTimeout = 5 * time.Second

// Persister bridges the in-memory store and durable storage. It loads the
// initial token set from the environment snapshot or the on-disk file, and
// serializes the whole store back to disk after every mutation. The store
// stays authoritative: a failed write is a warning, never an error for the
// caller that triggered the mutation.
type Persister struct {
	path        string
	envVar      string
	saveTimeout time.Duration
	logger      *slog.Logger

	// saveMu serializes snapshot writes so they can run outside the store
	// lock without interleaving on the file.
	saveMu sync.Mutex
}

// NewPersister creates a persister writing to path. envVar names the
// environment variable checked for a startup snapshot before the file.
func NewPersister(path, envVar string, logger *slog.Logger) *Persister {
	if logger == nil {
		logger = slog.Default()
	}
	return &Persister{
		path:        path,
		envVar:      envVar,
		saveTimeout: defaultSaveTimeout,
		logger:      logger.With(slog.String("component", "token_persister")),
	}
}

// Path returns the on-disk snapshot location.
func (p *Persister) Path() string {
	return p.path
}

// Load resolves the initial token set. The environment snapshot wins when it
// is present and parses; otherwise the on-disk file is tried; otherwise the
// store starts empty. Load never fails: an unparsable source only disqualifies
// that source.
func (p *Persister) Load(ctx context.Context) (map[string]*Record, string) {
	if raw := os.Getenv(p.envVar); raw != "" {
		records, err := decodeSnapshot([]byte(raw))
		if err == nil {
			p.logger.InfoContext(ctx, "loaded token snapshot from environment",
				slog.String("env_var", p.envVar),
				slog.Int("tokens", len(records)))
			return records, SourceEnv
		}
		p.logger.WarnContext(ctx, "environment snapshot unparsable, falling back to file",
			slog.String("env_var", p.envVar),
			slog.String("error", err.Error()))
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		if !os.IsNotExist(err) {
			p.logger.WarnContext(ctx, "token snapshot file unreadable, starting empty",
				slog.String("path", p.path),
				slog.String("error", err.Error()))
		}
		return make(map[string]*Record), SourceEmpty
	}

	records, err := decodeSnapshot(data)
	if err != nil {
		p.logger.WarnContext(ctx, "token snapshot file unparsable, starting empty",
			slog.String("path", p.path),
			slog.String("error", err.Error()))
		return make(map[string]*Record), SourceEmpty
	}
	p.logger.InfoContext(ctx, "loaded token snapshot from file",
		slog.String("path", p.path),
		slog.Int("tokens", len(records)))
	return records, SourceFile
}

// Save serializes records to the on-disk snapshot. Failures are logged as
// warnings and returned for observability; callers must not propagate them
// to whoever triggered the mutation. The write is bounded by a best-effort
// timeout so a stalled filesystem cannot block the caller indefinitely.
func (p *Persister) Save(ctx context.Context, records map[string]*Record) error {
	ctx, cancel := context.WithTimeout(ctx, p.saveTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- p.write(records)
	}()

	select {
	case err := <-done:
		if err != nil {
			p.logger.WarnContext(ctx, "could not write token snapshot, in-memory store remains authoritative",
				slog.String("path", p.path),
				slog.String("error", err.Error()))
		}
		return err
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "token snapshot write timed out",
			slog.String("path", p.path),
			slog.Duration("timeout", p.saveTimeout))
		return ctx.Err()
	}
}

func (p *Persister) write(records map[string]*Record) error {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()

	data, err := encodeSnapshot(records)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(p.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(p.path, data, 0600)
}

// encodeSnapshot renders the full store content in the snapshot wire format.
func encodeSnapshot(records map[string]*Record) ([]byte, error) {
	wire := make(map[string]wireRecord, len(records))
	for token, rec := range records {
		wire[token] = rec.toWire()
	}
	return json.MarshalIndent(wire, "", "  ")
}

// decodeSnapshot parses snapshot data back into records. The whole snapshot
// must be structurally valid JSON; individual entries with unparsable
// timestamps disqualify the snapshot since partial token sets would silently
// revoke access.
func decodeSnapshot(data []byte) (map[string]*Record, error) {
	var wire map[string]wireRecord
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	records := make(map[string]*Record, len(wire))
	for token, w := range wire {
		rec, err := w.toRecord()
		if err != nil {
			return nil, err
		}
		records[token] = rec
	}
	return records, nil
}
