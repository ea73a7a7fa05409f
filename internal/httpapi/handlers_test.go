package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"callerid-rotation/internal/allocate"
	"callerid-rotation/internal/auth"
	"callerid-rotation/internal/config"
	"callerid-rotation/internal/coord"
	"callerid-rotation/internal/history"
	"callerid-rotation/internal/pool"

	"github.com/gin-gonic/gin"
)

func newTestRouter(t *testing.T, cfg allocate.Config) (*gin.Engine, *pool.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ps := pool.NewMemoryStore()
	cs := coord.NewMemoryStore()
	mgr, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}

	h := Handlers{
		Auth:             mgr,
		Allocator:        allocate.NewService(ps, cs, cfg, nil),
		Pool:             ps,
		Coord:            cs,
		History:          history.NewService(history.NewMemoryRepo(), nil),
		DefaultHourlyCap: 100,
		DefaultDailyCap:  500,
	}

	r := gin.New()
	r.POST("/v1/auth/login", h.Login)
	r.GET("/v1/next-cid", h.NextCallerID)
	r.DELETE("/v1/reservations/:number", h.ReleaseReservation)
	r.GET("/v1/reservations/:number", h.LookupReservation)
	r.POST("/v1/admin/caller-ids", h.CreateCallerID)
	r.GET("/v1/admin/caller-ids", h.ListCallerIDs)
	r.GET("/v1/admin/caller-ids/:number", h.GetCallerID)
	r.PATCH("/v1/admin/caller-ids/:number", h.UpdateCallerID)
	r.DELETE("/v1/admin/caller-ids/:number", h.DeactivateCallerID)
	r.GET("/v1/stats", h.Stats)
	return r, ps
}

func seedNumber(t *testing.T, ps *pool.MemoryStore, number, area string) {
	t.Helper()
	now := time.Now().UTC()
	err := ps.Create(context.Background(), pool.CallerID{
		Number: number, AreaCode: area, HourlyCap: 100, DailyCap: 500,
		Active: true, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)
	return w
}

func TestNextCallerIDSuccess(t *testing.T) {
	r, ps := newTestRouter(t, allocate.Config{})
	seedNumber(t, ps, "2125550001", "212")

	w := do(r, http.MethodGet, "/v1/next-cid?to=2125551234&campaign=c&agent=a", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp allocate.Allocation
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Number != "2125550001" || resp.TTLSeconds != 300 {
		t.Fatalf("unexpected allocation: %+v", resp)
	}
}

func TestNextCallerIDErrorMapping(t *testing.T) {
	r, ps := newTestRouter(t, allocate.Config{AgentRateLimitPerMinute: 1})
	seedNumber(t, ps, "2125550001", "212")

	// invalid destination
	w := do(r, http.MethodGet, "/v1/next-cid?to=123&campaign=c&agent=a", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid destination: status = %d", w.Code)
	}

	// first real request consumes the rate budget
	if w := do(r, http.MethodGet, "/v1/next-cid?to=2125551234&campaign=c&agent=a", ""); w.Code != http.StatusOK {
		t.Fatalf("first allocation: status = %d", w.Code)
	}

	// second is rate limited with Retry-After
	w = do(r, http.MethodGet, "/v1/next-cid?to=2125551234&campaign=c&agent=a", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("rate limited: status = %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}

	// different agent: the only number is reserved
	w = do(r, http.MethodGet, "/v1/next-cid?to=2125551234&campaign=c&agent=b", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("none available: status = %d", w.Code)
	}
	var resp struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Kind != string(allocate.KindNoneAvailable) {
		t.Fatalf("kind = %q", resp.Kind)
	}
}

func TestReservationLifecycleEndpoints(t *testing.T) {
	r, ps := newTestRouter(t, allocate.Config{})
	seedNumber(t, ps, "2125550001", "212")

	if w := do(r, http.MethodGet, "/v1/reservations/2125550001", ""); w.Code != http.StatusNotFound {
		t.Fatalf("lookup before allocation: status = %d", w.Code)
	}

	if w := do(r, http.MethodGet, "/v1/next-cid?to=2125551234&campaign=c&agent=a", ""); w.Code != http.StatusOK {
		t.Fatalf("allocate: status = %d", w.Code)
	}

	w := do(r, http.MethodGet, "/v1/reservations/2125550001", "")
	if w.Code != http.StatusOK {
		t.Fatalf("lookup: status = %d", w.Code)
	}
	var lookup struct {
		Number     string `json:"number"`
		TTLSeconds int    `json:"ttl_seconds"`
		Payload    struct {
			Agent string `json:"agent"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &lookup); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if lookup.Number != "2125550001" || lookup.Payload.Agent != "a" || lookup.TTLSeconds <= 0 {
		t.Fatalf("unexpected lookup: %+v", lookup)
	}

	w = do(r, http.MethodDelete, "/v1/reservations/2125550001", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"released":true`) {
		t.Fatalf("release: status = %d body %s", w.Code, w.Body.String())
	}
	w = do(r, http.MethodDelete, "/v1/reservations/2125550001", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"released":false`) {
		t.Fatalf("second release: status = %d body %s", w.Code, w.Body.String())
	}
}

func TestAdminCallerIDCRUD(t *testing.T) {
	r, _ := newTestRouter(t, allocate.Config{})

	// create with formatted number and default caps
	w := do(r, http.MethodPost, "/v1/admin/caller-ids", `{"number":"+1 (212) 555-0001","carrier":"acme"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status = %d body %s", w.Code, w.Body.String())
	}
	var created pool.CallerID
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Number != "12125550001" || created.AreaCode != "212" {
		t.Fatalf("normalization: %+v", created)
	}
	if created.HourlyCap != 100 || created.DailyCap != 500 {
		t.Fatalf("default caps: %+v", created)
	}

	// duplicate
	if w := do(r, http.MethodPost, "/v1/admin/caller-ids", `{"number":"12125550001"}`); w.Code != http.StatusConflict {
		t.Fatalf("duplicate: status = %d", w.Code)
	}

	// invalid caps
	if w := do(r, http.MethodPost, "/v1/admin/caller-ids", `{"number":"12125550002","hourly_cap":10,"daily_cap":5}`); w.Code != http.StatusBadRequest {
		t.Fatalf("cap inversion: status = %d", w.Code)
	}

	// get
	if w := do(r, http.MethodGet, "/v1/admin/caller-ids/12125550001", ""); w.Code != http.StatusOK {
		t.Fatalf("get: status = %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/v1/admin/caller-ids/12125559999", ""); w.Code != http.StatusNotFound {
		t.Fatalf("get missing: status = %d", w.Code)
	}

	// patch
	w = do(r, http.MethodPatch, "/v1/admin/caller-ids/12125550001", `{"hourly_cap":7}`)
	if w.Code != http.StatusOK {
		t.Fatalf("patch: status = %d body %s", w.Code, w.Body.String())
	}
	var patched pool.CallerID
	if err := json.Unmarshal(w.Body.Bytes(), &patched); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if patched.HourlyCap != 7 || patched.Carrier != "acme" {
		t.Fatalf("patch result: %+v", patched)
	}

	// deactivate, then list shows 1 total, 0 active
	if w := do(r, http.MethodDelete, "/v1/admin/caller-ids/12125550001", ""); w.Code != http.StatusOK {
		t.Fatalf("deactivate: status = %d", w.Code)
	}
	w = do(r, http.MethodGet, "/v1/admin/caller-ids", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list: status = %d", w.Code)
	}
	var list struct {
		Total  int `json:"total"`
		Active int `json:"active"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Total != 1 || list.Active != 0 {
		t.Fatalf("list counts: %+v", list)
	}
}

func TestStatsEndpoint(t *testing.T) {
	r, ps := newTestRouter(t, allocate.Config{})
	seedNumber(t, ps, "2125550001", "212")

	if w := do(r, http.MethodGet, "/v1/next-cid?to=2125551234&campaign=c&agent=a", ""); w.Code != http.StatusOK {
		t.Fatalf("allocate: status = %d", w.Code)
	}

	w := do(r, http.MethodGet, "/v1/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("stats: status = %d body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Pool struct {
			Total  int `json:"total"`
			Active int `json:"active"`
		} `json:"pool"`
		Numbers []struct {
			Number     string `json:"number"`
			Active     bool   `json:"active"`
			HourlyUsed int    `json:"hourly_used"`
			DailyUsed  int    `json:"daily_used"`
			Reserved   bool   `json:"reserved"`
		} `json:"numbers"`
		Outcomes map[string]int64 `json:"outcomes"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Pool.Total != 1 || resp.Pool.Active != 1 {
		t.Fatalf("pool snapshot: %+v", resp.Pool)
	}
	if len(resp.Numbers) != 1 {
		t.Fatalf("numbers: %+v", resp.Numbers)
	}
	n := resp.Numbers[0]
	if n.Number != "2125550001" || !n.Active || !n.Reserved {
		t.Fatalf("number snapshot: %+v", n)
	}
	if n.HourlyUsed != 1 || n.DailyUsed != 1 {
		t.Fatalf("usage counts: %+v", n)
	}
	if resp.Outcomes[history.OutcomeAllocated] != 1 {
		t.Fatalf("outcomes: %+v", resp.Outcomes)
	}

	if w := do(r, http.MethodDelete, "/v1/reservations/2125550001", ""); w.Code != http.StatusOK {
		t.Fatalf("release: status = %d", w.Code)
	}
	w = do(r, http.MethodGet, "/v1/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("stats after release: status = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), `"reserved":true`) {
		t.Fatalf("reservation flag should clear after release: %s", w.Body.String())
	}

	if w := do(r, http.MethodGet, "/v1/stats?window_minutes=bogus", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad window: status = %d", w.Code)
	}
}

func TestLoginEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, allocate.Config{})

	if w := do(r, http.MethodPost, "/v1/auth/login", `{"user_id":"u"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing role: status = %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/v1/auth/login", `{"user_id":"u","role":"superuser"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown role: status = %d", w.Code)
	}

	w := do(r, http.MethodPost, "/v1/auth/login", `{"user_id":"u","role":"dialer"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login: status = %d body %s", w.Code, w.Body.String())
	}
	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatal("empty token pair")
	}
}
