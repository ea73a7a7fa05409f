package allocate

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"callerid-rotation/internal/coord"
	"callerid-rotation/internal/metrics"
	"callerid-rotation/internal/phone"
	"callerid-rotation/internal/pool"
)

// Counter TTLs exceed the bucket width so a counter created at the very end
// of its bucket still outlives the bucket.
const (
	hourlyCounterTTL = 3700 * time.Second
	dailyCounterTTL  = 90000 * time.Second
	rateCounterTTL   = 60 * time.Second
)

// Config holds the allocator knobs. Zero values fall back to the documented
// defaults; AgentRateLimitPerMinute == 0 disables the rate limit.
type Config struct {
	ReservationTTL          time.Duration
	AgentRateLimitPerMinute int
	CandidateScanLimit      int
	RequestDeadline         time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	if out.ReservationTTL <= 0 {
		out.ReservationTTL = 300 * time.Second
	}
	if out.CandidateScanLimit <= 0 {
		out.CandidateScanLimit = 50
	}
	if out.RequestDeadline <= 0 {
		out.RequestDeadline = 2 * time.Second
	}
	return out
}

// Service is the allocation engine. It owns no in-process locks; every
// cross-request serialization happens inside the coordination store via
// SetIfAbsent.
type Service struct {
	pool  pool.Store
	coord coord.Store
	cfg   Config
	log   *slog.Logger

	now func() time.Time
}

func NewService(p pool.Store, c coord.Store, cfg Config, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{pool: p, coord: c, cfg: cfg.withDefaults(), log: log, now: time.Now}
}

// Allocate runs the phased allocation:
//
//  1. per-agent rate limit
//  2. candidate query, tier-1 (area match) then tier-2 (any)
//  3. per-candidate reservation contention and cap evaluation
//
// On success the reservation and both usage counters are already written;
// the last_used_at write is best-effort.
func (s *Service) Allocate(ctx context.Context, req Request) (Allocation, error) {
	campaign := strings.TrimSpace(req.Campaign)
	agent := strings.TrimSpace(req.Agent)
	if campaign == "" {
		return Allocation{}, errInvalidInput("campaign is required")
	}
	if agent == "" {
		return Allocation{}, errInvalidInput("agent is required")
	}
	dest, err := phone.NormalizeDestination(req.Destination)
	if err != nil {
		return Allocation{}, errInvalidDestination("destination must be 7-15 digits")
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestDeadline)
	defer cancel()

	now := s.now().UTC()

	// Phase 1: rate limit. The increment lands before any candidate scan so
	// scan cost cannot be used to amplify abuse.
	if s.cfg.AgentRateLimitPerMinute > 0 {
		n, err := s.coord.IncrementWithTTL(ctx, coord.AgentRateKey(agent, now), rateCounterTTL)
		if err != nil {
			return Allocation{}, errUnavailable("rate limit check failed", err)
		}
		if n > int64(s.cfg.AgentRateLimitPerMinute) {
			return Allocation{}, errRateLimited(agent, untilNextMinute(now))
		}
	}

	// Phase 2 + 3: tier-1 strict area match, then tier-2 any area. Numbers
	// already contended in tier-1 are skipped in tier-2 so a capped candidate
	// is not charged twice in the same request.
	tried := make(map[string]struct{})
	payload := ReservationPayload{
		Agent:       agent,
		Campaign:    campaign,
		Destination: dest,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.ReservationTTL),
	}

	if area := phone.DestinationAreaCode(dest); area != "" {
		alloc, won, err := s.contend(ctx, area, tried, payload)
		if err != nil {
			return Allocation{}, err
		}
		if won {
			return alloc, nil
		}
	}

	alloc, won, err := s.contend(ctx, pool.AnyAreaCode, tried, payload)
	if err != nil {
		return Allocation{}, err
	}
	if won {
		return alloc, nil
	}
	return Allocation{}, errNoneAvailable()
}

// contend queries one candidate tier and races for a reservation on each
// candidate in LRU order.
func (s *Service) contend(ctx context.Context, areaCode string, tried map[string]struct{}, payload ReservationPayload) (Allocation, bool, error) {
	candidates, err := s.pool.QueryCandidates(ctx, areaCode, s.cfg.CandidateScanLimit)
	if err != nil {
		return Allocation{}, false, errUnavailable("candidate query failed", err)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Allocation{}, false, errUnavailable("reservation payload encoding failed", err)
	}

	scanned := 0
	defer func() { metrics.CandidateScanDepth.Observe(float64(scanned)) }()

	for _, c := range candidates {
		if _, seen := tried[c.Number]; seen {
			continue
		}
		tried[c.Number] = struct{}{}
		scanned++

		if c.HourlyCap == 0 || c.DailyCap == 0 {
			continue
		}

		key := coord.ReservationKey(c.Number)
		metrics.ReservationAttemptsTotal.Inc()
		created, err := s.coord.SetIfAbsent(ctx, key, string(raw), s.cfg.ReservationTTL)
		if err != nil {
			return Allocation{}, false, errUnavailable("reservation write failed", err)
		}
		if !created {
			continue
		}

		// The deadline may expire between the reservation create and the cap
		// checks. Releasing here avoids locking the number for a full TTL.
		if ctx.Err() != nil {
			s.releaseReservation(key)
			return Allocation{}, false, errUnavailable("request deadline exceeded", ctx.Err())
		}

		ok, err := s.consumeCaps(ctx, c, payload.CreatedAt)
		if err != nil {
			s.releaseReservation(key)
			return Allocation{}, false, err
		}
		if !ok {
			s.releaseReservation(key)
			continue
		}

		if err := s.pool.UpdateLastUsed(ctx, c.Number, payload.CreatedAt); err != nil {
			// The reservation exists, so the allocation stands; LRU ordering
			// converges on the next successful write.
			s.log.Warn("last_used_at write failed",
				"number", c.Number, "error", err)
		}

		return Allocation{
			Number:      c.Number,
			AreaCode:    c.AreaCode,
			Carrier:     c.Carrier,
			TTLSeconds:  int(s.cfg.ReservationTTL / time.Second),
			Destination: payload.Destination,
			Campaign:    payload.Campaign,
			Agent:       payload.Agent,
			AllocatedAt: payload.CreatedAt,
		}, true, nil
	}
	return Allocation{}, false, nil
}

// consumeCaps increments the hourly then daily counter for the candidate.
// Returns false when a cap is exceeded, after compensating the increments.
func (s *Service) consumeCaps(ctx context.Context, c pool.CallerID, at time.Time) (bool, error) {
	hourlyKey := coord.HourlyUsageKey(c.Number, at)
	dailyKey := coord.DailyUsageKey(c.Number, at)

	h, err := s.coord.IncrementWithTTL(ctx, hourlyKey, hourlyCounterTTL)
	if err != nil {
		return false, errUnavailable("hourly counter failed", err)
	}
	if h > int64(c.HourlyCap) {
		s.compensate(hourlyKey)
		return false, nil
	}

	d, err := s.coord.IncrementWithTTL(ctx, dailyKey, dailyCounterTTL)
	if err != nil {
		s.compensate(hourlyKey)
		return false, errUnavailable("daily counter failed", err)
	}
	if d > int64(c.DailyCap) {
		s.compensate(dailyKey)
		s.compensate(hourlyKey)
		return false, nil
	}
	return true, nil
}

// compensate and releaseReservation run on a fresh short context so cleanup
// still goes out after the request deadline has fired.

func (s *Service) compensate(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.coord.Decrement(ctx, key); err != nil {
		s.log.Warn("counter compensation failed", "key", key, "error", err)
	}
}

func (s *Service) releaseReservation(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := s.coord.Delete(ctx, key); err != nil {
		s.log.Warn("reservation release failed", "key", key, "error", err)
	}
}

// Release drops the reservation for a number. Idempotent; usage counters are
// left alone because they count placement attempts, not call outcomes. The
// claimant is advisory and only logged; any caller may release.
func (s *Service) Release(ctx context.Context, number, claimant string) (bool, error) {
	n, err := phone.NormalizeCallerID(number)
	if err != nil {
		return false, errInvalidInput("caller id must be 10-15 digits")
	}
	deleted, err := s.coord.Delete(ctx, coord.ReservationKey(n))
	if err != nil {
		return false, errUnavailable("reservation delete failed", err)
	}
	if deleted {
		s.log.Info("reservation released", "number", n, "claimant", claimant)
	}
	return deleted, nil
}

// LookupReservation returns the live reservation for a number, if any.
func (s *Service) LookupReservation(ctx context.Context, number string) (Reservation, bool, error) {
	n, err := phone.NormalizeCallerID(number)
	if err != nil {
		return Reservation{}, false, errInvalidInput("caller id must be 10-15 digits")
	}
	key := coord.ReservationKey(n)
	raw, ok, err := s.coord.Get(ctx, key)
	if err != nil {
		return Reservation{}, false, errUnavailable("reservation read failed", err)
	}
	if !ok {
		return Reservation{}, false, nil
	}
	r := Reservation{Number: n}
	if err := json.Unmarshal([]byte(raw), &r.Payload); err != nil {
		// Legacy or hand-written payloads stay opaque; the reservation is
		// still reported as present.
		s.log.Warn("unparseable reservation payload", "number", n)
	}
	if ttl, err := s.coord.TTL(ctx, key); err == nil {
		r.RemainingTTL = ttl
	}
	return r, true, nil
}

func untilNextMinute(now time.Time) time.Duration {
	next := now.Truncate(time.Minute).Add(time.Minute)
	return next.Sub(now)
}
