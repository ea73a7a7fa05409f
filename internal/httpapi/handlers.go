package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"callerid-rotation/internal/allocate"
	"callerid-rotation/internal/auth"
	"callerid-rotation/internal/coord"
	"callerid-rotation/internal/history"
	"callerid-rotation/internal/metrics"
	"callerid-rotation/internal/phone"
	"callerid-rotation/internal/pool"
	"callerid-rotation/internal/rbac"
	"callerid-rotation/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth      *auth.Manager
	Allocator *allocate.Service
	Pool      pool.Store
	Coord     coord.Store
	History   *history.Service

	// DefaultHourlyCap / DefaultDailyCap apply to caller-IDs created
	// without explicit caps.
	DefaultHourlyCap int
	DefaultDailyCap  int
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, role required"})
		return
	}
	if !rbac.Known(req.Role) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Allocation ---

// NextCallerID serves one allocation. Inputs ride on the query string so
// dialer integrations can call it with a bare GET.
func (h Handlers) NextCallerID(c *gin.Context) {
	start := time.Now()
	req := allocate.Request{
		Destination: c.Query("to"),
		Campaign:    c.Query("campaign"),
		Agent:       c.Query("agent"),
	}

	got, err := h.Allocator.Allocate(c.Request.Context(), req)
	elapsed := time.Since(start)

	if err != nil {
		kind := allocate.KindOf(err)
		logger.FromGin(c).Debug("allocation rejected", "kind", kind, "agent", req.Agent)
		metrics.ObserveAllocation(string(kind), elapsed)
		h.History.Record(c.Request.Context(), history.Record{
			Destination: phone.Normalize(req.Destination),
			Campaign:    req.Campaign,
			Agent:       req.Agent,
			Outcome:     string(kind),
			LatencyMS:   int(elapsed.Milliseconds()),
		})
		abortAllocationError(c, err)
		return
	}

	metrics.ObserveAllocation(history.OutcomeAllocated, elapsed)
	h.History.Record(c.Request.Context(), history.Record{
		Number:      got.Number,
		Destination: got.Destination,
		Campaign:    got.Campaign,
		Agent:       got.Agent,
		Outcome:     history.OutcomeAllocated,
		LatencyMS:   int(elapsed.Milliseconds()),
	})
	c.JSON(http.StatusOK, got)
}

func (h Handlers) ReleaseReservation(c *gin.Context) {
	claimant, _ := auth.UserID(c.Request.Context())
	deleted, err := h.Allocator.Release(c.Request.Context(), c.Param("number"), claimant)
	if err != nil {
		abortAllocationError(c, err)
		return
	}
	metrics.ReleasesTotal.Inc()
	c.JSON(http.StatusOK, gin.H{"released": deleted})
}

func (h Handlers) LookupReservation(c *gin.Context) {
	r, found, err := h.Allocator.LookupReservation(c.Request.Context(), c.Param("number"))
	if err != nil {
		abortAllocationError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no reservation"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"number":      r.Number,
		"payload":     r.Payload,
		"ttl_seconds": int(r.RemainingTTL / time.Second),
	})
}

// abortAllocationError maps the allocator's error taxonomy onto HTTP. The
// machine-readable kind always rides in the body.
func abortAllocationError(c *gin.Context, err error) {
	ae, ok := allocate.AsError(err)
	if !ok {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"kind": allocate.KindUnavailable, "error": "internal failure"})
		return
	}
	status := http.StatusServiceUnavailable
	switch ae.Kind {
	case allocate.KindInvalidInput, allocate.KindInvalidDestination:
		status = http.StatusBadRequest
	case allocate.KindRateLimited:
		status = http.StatusTooManyRequests
		c.Header("Retry-After", strconv.Itoa(int(ae.RetryAfter/time.Second)))
	case allocate.KindConflict:
		status = http.StatusConflict
	}
	c.AbortWithStatusJSON(status, gin.H{"kind": ae.Kind, "error": ae.Reason})
}

// --- Admin caller-ID CRUD ---

type createCallerIDRequest struct {
	Number    string `json:"number"`
	AreaCode  string `json:"area_code"`
	Carrier   string `json:"carrier"`
	HourlyCap *int   `json:"hourly_cap"`
	DailyCap  *int   `json:"daily_cap"`
	Metadata  string `json:"metadata"`
}

func (h Handlers) CreateCallerID(c *gin.Context) {
	var req createCallerIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	number, err := phone.NormalizeCallerID(req.Number)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "number must be 10-15 digits"})
		return
	}
	areaCode := req.AreaCode
	if areaCode == "" {
		areaCode = phone.AreaCode(number)
	}

	now := time.Now().UTC()
	entry := pool.CallerID{
		Number:    number,
		AreaCode:  areaCode,
		Carrier:   req.Carrier,
		HourlyCap: h.DefaultHourlyCap,
		DailyCap:  h.DefaultDailyCap,
		Active:    true,
		Metadata:  req.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.HourlyCap != nil {
		entry.HourlyCap = *req.HourlyCap
	}
	if req.DailyCap != nil {
		entry.DailyCap = *req.DailyCap
	}

	switch err := h.Pool.Create(c.Request.Context(), entry); {
	case errors.Is(err, pool.ErrExists):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"kind": allocate.KindConflict, "error": "caller id already exists"})
	case errors.Is(err, pool.ErrInvalid):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "caps must be non-negative and hourly_cap <= daily_cap"})
	case err != nil:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
	default:
		h.refreshPoolGauge(c)
		c.JSON(http.StatusCreated, entry)
	}
}

func (h Handlers) GetCallerID(c *gin.Context) {
	number, err := phone.NormalizeCallerID(c.Param("number"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "number must be 10-15 digits"})
		return
	}
	entry, err := h.Pool.GetByNumber(c.Request.Context(), number)
	if errors.Is(err, pool.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "caller id not found"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h Handlers) ListCallerIDs(c *gin.Context) {
	entries, err := h.Pool.List(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	active := 0
	for _, e := range entries {
		if e.Active {
			active++
		}
	}
	metrics.PoolActiveNumbers.Set(float64(active))
	c.JSON(http.StatusOK, gin.H{"caller_ids": entries, "total": len(entries), "active": active})
}

type updateCallerIDRequest struct {
	Carrier   *string `json:"carrier"`
	AreaCode  *string `json:"area_code"`
	HourlyCap *int    `json:"hourly_cap"`
	DailyCap  *int    `json:"daily_cap"`
	Active    *bool   `json:"active"`
	Metadata  *string `json:"metadata"`
}

func (h Handlers) UpdateCallerID(c *gin.Context) {
	number, err := phone.NormalizeCallerID(c.Param("number"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "number must be 10-15 digits"})
		return
	}
	var req updateCallerIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	entry, err := h.Pool.Update(c.Request.Context(), number, pool.Update{
		Carrier:   req.Carrier,
		AreaCode:  req.AreaCode,
		HourlyCap: req.HourlyCap,
		DailyCap:  req.DailyCap,
		Active:    req.Active,
		Metadata:  req.Metadata,
	})
	switch {
	case errors.Is(err, pool.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "caller id not found"})
	case errors.Is(err, pool.ErrInvalid):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "caps must be non-negative and hourly_cap <= daily_cap"})
	case err != nil:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
	default:
		h.refreshPoolGauge(c)
		c.JSON(http.StatusOK, entry)
	}
}

func (h Handlers) DeactivateCallerID(c *gin.Context) {
	number, err := phone.NormalizeCallerID(c.Param("number"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "number must be 10-15 digits"})
		return
	}
	switch err := h.Pool.Deactivate(c.Request.Context(), number); {
	case errors.Is(err, pool.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "caller id not found"})
	case err != nil:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "deactivate failed"})
	default:
		h.refreshPoolGauge(c)
		c.JSON(http.StatusOK, gin.H{"number": number, "active": false})
	}
}

func (h Handlers) refreshPoolGauge(c *gin.Context) {
	entries, err := h.Pool.List(c.Request.Context())
	if err != nil {
		return
	}
	active := 0
	for _, e := range entries {
		if e.Active {
			active++
		}
	}
	metrics.PoolActiveNumbers.Set(float64(active))
}

// --- Stats ---

// Stats returns a dashboard snapshot: per-number usage and reservation
// state for the current buckets, plus allocation outcomes over a trailing
// window (default one hour).
func (h Handlers) Stats(c *gin.Context) {
	window := time.Hour
	if raw := c.Query("window_minutes"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "window_minutes must be a positive integer"})
			return
		}
		window = time.Duration(n) * time.Minute
	}

	entries, err := h.Pool.List(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "pool snapshot failed"})
		return
	}

	now := time.Now().UTC()
	active := 0
	numbers := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		if e.Active {
			active++
		}
		_, reserved, err := h.Coord.Get(c.Request.Context(), coord.ReservationKey(e.Number))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"kind": allocate.KindUnavailable, "error": "coordination store unavailable"})
			return
		}
		item := gin.H{
			"number":      e.Number,
			"area_code":   e.AreaCode,
			"active":      e.Active,
			"hourly_used": h.counterValue(c, coord.HourlyUsageKey(e.Number, now)),
			"daily_used":  h.counterValue(c, coord.DailyUsageKey(e.Number, now)),
			"hourly_cap":  e.HourlyCap,
			"daily_cap":   e.DailyCap,
			"reserved":    reserved,
		}
		if e.LastUsedAt != nil {
			item["last_used_at"] = e.LastUsedAt
		}
		numbers = append(numbers, item)
	}

	outcomes, err := h.History.Summary(c.Request.Context(), window)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history summary failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"pool": gin.H{
			"total":  len(entries),
			"active": active,
		},
		"numbers":        numbers,
		"window_minutes": int(window / time.Minute),
		"outcomes":       outcomes,
	})
}

// counterValue reads a usage counter, treating absent or unreadable keys as
// zero; counters vanish at TTL expiry, so absence is the common case.
func (h Handlers) counterValue(c *gin.Context, key string) int {
	raw, ok, err := h.Coord.Get(c.Request.Context(), key)
	if err != nil || !ok {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
