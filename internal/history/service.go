package history

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for allocation records.
// It MUST be append-only; no Update/Delete methods are provided.
type Repository interface {
	Append(ctx context.Context, r Record) error

	// CountByOutcome aggregates records at or after since, keyed by outcome.
	CountByOutcome(ctx context.Context, since time.Time) (map[string]int64, error)
}

var ErrInvalidRecord = errors.New("history: invalid record")

// Service writes the allocation log. Logging is best-effort; callers must
// never fail an allocation because the history write failed, so Record
// swallows repository errors after logging them.
type Service struct {
	repo  Repository
	log   *slog.Logger
	clock func() time.Time
}

func NewService(repo Repository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, log: log, clock: time.Now}
}

// Record appends one row, filling ID and timestamp when absent.
func (s *Service) Record(ctx context.Context, r Record) {
	if s == nil || s.repo == nil {
		return
	}
	if r.Outcome == "" || r.Agent == "" {
		s.log.Warn("dropping invalid allocation record", "outcome", r.Outcome, "agent", r.Agent)
		return
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.At.IsZero() {
		r.At = s.clock().UTC()
	}
	if err := s.repo.Append(ctx, r); err != nil {
		s.log.Warn("allocation record write failed", "error", err)
	}
}

// Summary aggregates outcomes over the trailing window.
func (s *Service) Summary(ctx context.Context, window time.Duration) (map[string]int64, error) {
	if s == nil || s.repo == nil {
		return map[string]int64{}, nil
	}
	if window <= 0 {
		return nil, ErrInvalidRecord
	}
	return s.repo.CountByOutcome(ctx, s.clock().UTC().Add(-window))
}
