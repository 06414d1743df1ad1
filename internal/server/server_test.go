package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/timesheet-grid/internal/model"
	"github.com/Tiliavir/timesheet-grid/internal/storage/storagetest"
)

func newTestServer(t *testing.T, cfg Config, entries ...model.TimeEntry) (*Server, *storagetest.MemStore) {
	t.Helper()
	mem := storagetest.NewMemStore(entries...)
	mem.AddCompany(model.Company{
		ID:   "c1",
		Name: "Acme",
		Paycycles: []model.Paycycle{
			{ID: "pc1", Name: "Sep", Frequency: model.FrequencyMonthly,
				StartDate: "2025-09-01", EndDate: "2025-09-30", PayDate: "2025-10-05"},
		},
	})
	s, err := New(cfg, mem, mem, nil)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2025, 9, 17, 12, 0, 0, 0, time.Local) }
	return s, mem
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) (T, *Error) {
	t.Helper()
	var env struct {
		Data  T      `json:"data"`
		Error *Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Data, env.Error
}

func TestListEntries_DefaultsToCurrentWeek(t *testing.T) {
	s, _ := newTestServer(t, Config{},
		model.TimeEntry{ID: "in", CompanyID: "c1", Date: "2025-09-19", DurationMinutes: 60},
		model.TimeEntry{ID: "out", CompanyID: "c1", Date: "2025-09-22", DurationMinutes: 60},
	)

	rec := do(t, s.Handler(), http.MethodGet, "/api/v1/companies/c1/entries", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries, _ := decode[[]model.TimeEntry](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, "in", entries[0].ID)

	rec = do(t, s.Handler(), http.MethodGet, "/api/v1/companies/c1/entries?from=2025-09-22&to=2025-09-28", nil)
	entries, _ = decode[[]model.TimeEntry](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, "out", entries[0].ID)
}

func TestListEntries_BadDates(t *testing.T) {
	s, _ := newTestServer(t, Config{})
	tests := []string{
		"/api/v1/companies/c1/entries?from=19.09.2025",
		"/api/v1/companies/c1/entries?to=tomorrow",
		"/api/v1/companies/c1/entries?from=2025-09-20&to=2025-09-19",
	}
	for _, path := range tests {
		rec := do(t, s.Handler(), http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		_, apiErr := decode[any](t, rec)
		require.NotNil(t, apiErr)
		assert.Equal(t, ErrCodeBadRequest, apiErr.Code)
	}
}

func TestCreateUpdateDelete(t *testing.T) {
	s, mem := newTestServer(t, Config{})
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/entries", model.TimeEntry{
		CompanyID: "c1", Date: "2025-09-19", DurationMinutes: 30, Description: "x",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created, _ := decode[model.TimeEntry](t, rec)
	require.NotEmpty(t, created.ID)

	rec = do(t, h, http.MethodPatch, "/api/v1/entries/"+created.ID, map[string]any{"durationMinutes": 45})
	require.Equal(t, http.StatusOK, rec.Code)
	updated, _ := decode[model.TimeEntry](t, rec)
	assert.Equal(t, 45, updated.DurationMinutes)
	assert.Equal(t, "x", updated.Description)

	rec = do(t, h, http.MethodPatch, "/api/v1/entries/"+created.ID, map[string]any{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/v1/entries/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, mem.Entries())

	rec = do(t, h, http.MethodDelete, "/api/v1/entries/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreate_Invalid(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	rec := do(t, s.Handler(), http.MethodPost, "/api/v1/entries", model.TimeEntry{Date: "2025-09-19"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	_, apiErr := decode[any](t, rec)
	require.NotNil(t, apiErr)
	assert.Equal(t, ErrCodeValidationFailed, apiErr.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/entries", bytes.NewBufferString("{nope"))
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBackendFailureIsInternalError(t *testing.T) {
	s, mem := newTestServer(t, Config{})
	mem.Fail["list"] = errors.New("connection refused")

	rec := do(t, s.Handler(), http.MethodGet, "/api/v1/companies/c1/entries", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	_, apiErr := decode[any](t, rec)
	require.NotNil(t, apiErr)
	assert.Equal(t, ErrCodeInternalError, apiErr.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestGetCompany_DerivesPaycycleStatus(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	rec := do(t, s.Handler(), http.MethodGet, "/api/v1/companies/c1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	c, _ := decode[CompanyResponse](t, rec)
	assert.Equal(t, "Acme", c.Name)
	require.Len(t, c.Paycycles, 1)
	assert.Equal(t, model.PaycycleOpen, c.Paycycles[0].Status)

	rec = do(t, s.Handler(), http.MethodGet, "/api/v1/companies/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListProjects_EmptyIsArray(t *testing.T) {
	s, _ := newTestServer(t, Config{})
	rec := do(t, s.Handler(), http.MethodGet, "/api/v1/companies/c1/projects", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[]}`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, Config{})
	rec := do(t, s.Handler(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"status":"ok"}}`, rec.Body.String())
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestServer(t, Config{RateLimit: 60, RateBurst: 2})
	h := s.Handler()

	for i := 0; i < 2; i++ {
		rec := do(t, h, http.MethodGet, "/api/v1/companies/c1/projects", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := do(t, h, http.MethodGet, "/api/v1/companies/c1/projects", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Health is not limited.
	rec = do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit_IgnoresRealIPHeaderByDefault(t *testing.T) {
	s, _ := newTestServer(t, Config{RateLimit: 1, RateBurst: 1})
	h := s.Handler()

	limited := 0
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/companies/c1/projects", nil)
		req.Header.Set("X-Real-IP", fmt.Sprintf("10.0.0.%d", i))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Equal(t, 49, limited)
	assert.Equal(t, 1, s.limiter.size())
}

func TestRateLimit_TrustProxyUsesRealIP(t *testing.T) {
	s, _ := newTestServer(t, Config{RateLimit: 1, RateBurst: 1, TrustProxy: true})
	h := s.Handler()

	for _, ip := range []string{"10.0.0.1", "10.0.0.2"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/companies/c1/projects", nil)
		req.Header.Set("X-Real-IP", ip)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, ip)
	}
	assert.Equal(t, 2, s.limiter.size())
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := newRateLimiter(60, 1, false)
	now := time.Date(2025, 9, 17, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 100; i++ {
		rl.allow(fmt.Sprintf("client-%d", i))
	}
	now = now.Add(limiterIdle / 2)
	rl.allow("client-0")

	now = now.Add(limiterIdle/2 + time.Second)
	assert.Equal(t, 99, rl.cleanup(limiterIdle))
	assert.Equal(t, 1, rl.size())
}

func TestRateLimiterCleanupLoopStopsWithContext(t *testing.T) {
	rl := newRateLimiter(60, 1, false)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rl.cleanupLoop(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanupLoop did not return after cancel")
	}
}
