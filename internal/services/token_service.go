package services

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"tokengate/internal/token"
)

// TokenService provides the business operations the HTTP layer calls into.
// It fronts the lifecycle engine and tracks request-level statistics.
type TokenService interface {
	// Access path
	Validate(ctx context.Context, tok string) (bool, string)

	// Administrative operations
	Create(ctx context.Context, req token.CreateRequest) (*token.Info, error)
	Activate(ctx context.Context, tok string) bool
	Deactivate(ctx context.Context, tok string) bool
	Delete(ctx context.Context, tok string) bool
	Get(ctx context.Context, tok string) (*token.Info, bool)
	List(ctx context.Context, activeOnly bool) []token.Info
	TimeRemaining(ctx context.Context, tok string) (string, bool)

	// Synchronization with the external token feed
	Sync(ctx context.Context, batch []token.Descriptor) token.SyncResult

	// Summary for the service root and health endpoints
	Summary(ctx context.Context) ServiceSummary
}

// ServiceSummary is the operator-facing snapshot of the token set.
type ServiceSummary struct {
	TotalTokens      int       `json:"total_tokens"`
	ActiveTokens     int       `json:"active_tokens"`
	SnapshotSource   string    `json:"snapshot_source"`
	TokensFile       string    `json:"tokens_file"`
	ValidationsTotal int64     `json:"validations_total"`
	StartedAt        time.Time `json:"started_at"`
}

type tokenService struct {
	manager        *token.Manager
	logger         *slog.Logger
	snapshotSource string
	tokensFile     string

	startTime        time.Time
	validationsTotal atomic.Int64
}

// NewTokenService creates a token service over the lifecycle engine.
// snapshotSource records where the startup snapshot came from.
func NewTokenService(manager *token.Manager, logger *slog.Logger, snapshotSource, tokensFile string) TokenService {
	if logger == nil {
		logger = slog.Default()
	}
	return &tokenService{
		manager:        manager,
		logger:         logger.With(slog.String("service", "token")),
		snapshotSource: snapshotSource,
		tokensFile:     tokensFile,
		startTime:      time.Now(),
	}
}

func (s *tokenService) Validate(ctx context.Context, tok string) (bool, string) {
	s.validationsTotal.Add(1)
	return s.manager.Validate(ctx, tok)
}

func (s *tokenService) Create(ctx context.Context, req token.CreateRequest) (*token.Info, error) {
	tok, err := s.manager.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	info, ok := s.manager.Get(tok)
	if !ok {
		// Deleted between create and read; surface what we know.
		info = token.Info{Token: tok}
	}
	return &info, nil
}

func (s *tokenService) Activate(ctx context.Context, tok string) bool {
	return s.manager.Activate(ctx, tok)
}

func (s *tokenService) Deactivate(ctx context.Context, tok string) bool {
	return s.manager.Deactivate(ctx, tok)
}

func (s *tokenService) Delete(ctx context.Context, tok string) bool {
	return s.manager.Delete(ctx, tok)
}

func (s *tokenService) Get(ctx context.Context, tok string) (*token.Info, bool) {
	info, ok := s.manager.Get(tok)
	if !ok {
		return nil, false
	}
	return &info, true
}

func (s *tokenService) List(ctx context.Context, activeOnly bool) []token.Info {
	return s.manager.List(activeOnly)
}

func (s *tokenService) TimeRemaining(ctx context.Context, tok string) (string, bool) {
	return s.manager.TimeRemaining(tok)
}

func (s *tokenService) Sync(ctx context.Context, batch []token.Descriptor) token.SyncResult {
	return s.manager.ApplyBatch(ctx, batch)
}

func (s *tokenService) Summary(ctx context.Context) ServiceSummary {
	return ServiceSummary{
		TotalTokens:      len(s.manager.List(false)),
		ActiveTokens:     len(s.manager.List(true)),
		SnapshotSource:   s.snapshotSource,
		TokensFile:       s.tokensFile,
		ValidationsTotal: s.validationsTotal.Load(),
		StartedAt:        s.startTime,
	}
}
