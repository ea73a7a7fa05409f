package pool

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("caller id not found")
	ErrExists   = errors.New("caller id already exists")
	ErrInvalid  = errors.New("invalid caller id record")
)

// AnyAreaCode selects candidates regardless of geography (tier-2 fallback).
const AnyAreaCode = ""

// Store is the authoritative caller-ID catalog port.
//
// Ordering contract: QueryCandidates returns rows ordered by
// (last_used_at ASC NULLS FIRST, number ASC). The number tiebreak keeps the
// ordering deterministic across replicas.
type Store interface {
	QueryCandidates(ctx context.Context, areaCode string, limit int) ([]CallerID, error)

	// UpdateLastUsed records an allocation timestamp. It must never move
	// last_used_at backwards, so late-arriving writes cannot reorder.
	UpdateLastUsed(ctx context.Context, number string, at time.Time) error

	GetByNumber(ctx context.Context, number string) (CallerID, error)

	// Admin surface.
	Create(ctx context.Context, c CallerID) error
	Update(ctx context.Context, number string, u Update) (CallerID, error)
	Deactivate(ctx context.Context, number string) error
	List(ctx context.Context) ([]CallerID, error)
}

// validate checks the static invariants shared by both repositories.
func validate(c CallerID) error {
	if c.Number == "" {
		return ErrInvalid
	}
	if c.HourlyCap < 0 || c.DailyCap < 0 {
		return ErrInvalid
	}
	if c.HourlyCap > c.DailyCap {
		return ErrInvalid
	}
	return nil
}
