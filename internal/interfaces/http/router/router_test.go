package router

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

	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-toolkit-api/internal/application/credit"
	"ai-toolkit-api/internal/application/toolkit"
	"ai-toolkit-api/internal/config"
	"ai-toolkit-api/internal/domain/service"
	"ai-toolkit-api/internal/infrastructure/persistence/memory"
	"ai-toolkit-api/internal/interfaces/http/handler"
	"ai-toolkit-api/internal/interfaces/http/middleware"
)

const testSecret = "test-secret"

type testServer struct {
	engine *gin.Engine
	ledger *credit.Ledger
	store  *memory.Store
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, nil
}

type failingCheck struct{}

func (failingCheck) HealthCheck(context.Context) error {
	return errors.New("connection refused")
}

func newTestServer(t *testing.T, mutate func(cfg *config.Config), gen service.TextGenerator) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.App.Name = "ai-toolkit-api"
	cfg.App.Env = "test"
	cfg.Observability.Metrics.Path = "/metrics"
	cfg.Security.JWT.Secret = testSecret
	cfg.Security.JWT.Audience = "authenticated"
	if mutate != nil {
		mutate(cfg)
	}

	store := memory.New()
	ledger := credit.NewLedger(store, store, store)
	catalog := toolkit.NewCatalog(toolkit.Deps{Generator: gen}, nil)
	runner := toolkit.NewRunner(ledger, nil, toolkit.RunnerConfig{})

	var limiter middleware.RateLimiter
	if cfg.Security.RateLimit.Enabled {
		limiter = denyAll{}
	}

	r := New(cfg, Handlers{
		Health:  handler.NewHealthHandler("test", handler.Dependency{Name: "store", Checker: store, Required: true}),
		Toolkit: handler.NewToolkitHandler(catalog, runner),
		Credits: handler.NewCreditsHandler(ledger, nil, 50),
	}, limiter)
	return &testServer{engine: r.Engine(), ledger: ledger, store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func (s *testServer) seed(t *testing.T, userID string, balance int64) {
	t.Helper()
	_, err := s.ledger.EnsureAccount(context.Background(), userID, balance)
	require.NoError(t, err)
}

func TestRunToolDebitsCredits(t *testing.T) {
	s := newTestServer(t, nil, nil)
	s.seed(t, "u1", 50)

	w, body := s.do(t, http.MethodPost, "/api/competitor-analysis", map[string]any{
		"userId":        "u1",
		"competitorUrl": "example.com",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(42), body["creditsRemaining"])
	analysis, ok := body["analysis"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Example", analysis["competitorName"])
	assert.Equal(t, 1, s.store.UsageCount("u1"))
}

func TestRunToolErrors(t *testing.T) {
	loading := service.TextGeneratorFunc(func(context.Context, []*schema.Message) (string, error) {
		return "", fmt.Errorf("hf: %w", service.ErrModelLoading)
	})
	s := newTestServer(t, nil, loading)
	s.seed(t, "u1", 50)
	s.seed(t, "poor", 1)

	tests := []struct {
		name   string
		path   string
		body   map[string]any
		status int
		code   string
	}{
		{name: "missing field", path: "/api/competitor-analysis", body: map[string]any{"userId": "u1"}, status: 400, code: "INVALID_INPUT"},
		{name: "insufficient", path: "/api/competitor-analysis", body: map[string]any{"userId": "poor", "competitorUrl": "a.com"}, status: 403, code: "INSUFFICIENT_CREDITS"},
		{name: "unknown account", path: "/api/competitor-analysis", body: map[string]any{"userId": "ghost", "competitorUrl": "a.com"}, status: 404, code: "ACCOUNT_NOT_FOUND"},
		{name: "unknown tool", path: "/api/does-not-exist", body: map[string]any{}, status: 404, code: "TOOL_NOT_FOUND"},
		{name: "model loading", path: "/api/release-notes", body: map[string]any{"userId": "u1", "changes": "fixed login"}, status: 503, code: "MODEL_LOADING"},
		{name: "bad url", path: "/api/competitor-analysis", body: map[string]any{"userId": "u1", "competitorUrl": "not a url"}, status: 400, code: "INVALID_INPUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := s.do(t, http.MethodPost, tt.path, tt.body, nil)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, body["code"])
			assert.NotEmpty(t, body["error"])
		})
	}

	acc, err := s.ledger.Account(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), acc.Balance)
	assert.Zero(t, s.store.UsageCount("u1"))
}

func TestRunToolReusedIdempotencyKeyConflicts(t *testing.T) {
	s := newTestServer(t, nil, nil)
	s.seed(t, "u1", 50)
	body := map[string]any{"userId": "u1", "competitorUrl": "example.com"}
	headers := map[string]string{"Idempotency-Key": "retry-1"}

	w, first := s.do(t, http.MethodPost, "/api/competitor-analysis", body, headers)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(42), first["creditsRemaining"])
	assert.Contains(t, first, "analysis")

	w, second := s.do(t, http.MethodPost, "/api/competitor-analysis", body, headers)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DUPLICATE_REQUEST", second["code"])
	assert.NotContains(t, second, "analysis")

	acc, err := s.ledger.Account(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), acc.Balance)
	assert.Equal(t, 1, s.store.UsageCount("u1"))
}

func TestRunToolIdempotencyKeyIsPerUser(t *testing.T) {
	s := newTestServer(t, nil, nil)
	s.seed(t, "u1", 50)
	s.seed(t, "u2", 50)
	headers := map[string]string{"Idempotency-Key": "shared"}

	w, _ := s.do(t, http.MethodPost, "/api/competitor-analysis",
		map[string]any{"userId": "u1", "competitorUrl": "example.com"}, headers)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, body := s.do(t, http.MethodPost, "/api/competitor-analysis",
		map[string]any{"userId": "u2", "competitorUrl": "example.com"}, headers)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(42), body["creditsRemaining"])

	for _, userID := range []string{"u1", "u2"} {
		acc, err := s.ledger.Account(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, int64(42), acc.Balance, userID)
		assert.Equal(t, 1, s.store.UsageCount(userID), userID)
	}
}

func TestFreeToolWithoutUser(t *testing.T) {
	s := newTestServer(t, nil, nil)
	w, body := s.do(t, http.MethodPost, "/api/post-scheduler", map[string]any{
		"topic":        "launch",
		"postsPerWeek": 3,
		"startDate":    "2024-01-01",
		"language":     "tr",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotContains(t, body, "creditsRemaining")
	schedule := body["schedule"].(map[string]any)
	assert.Equal(t, float64(3), schedule["totalPosts"])
}

func TestListTools(t *testing.T) {
	s := newTestServer(t, nil, nil)
	w, body := s.do(t, http.MethodGet, "/api/tools", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	tools := body["tools"].([]any)
	assert.Len(t, tools, 9)
}

func TestCreditsEndpoints(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w, _ := s.do(t, http.MethodGet, "/api/credits/u1", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body := s.do(t, http.MethodPost, "/api/credits/u1/ensure", nil, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, true, body["created"])
	assert.Equal(t, float64(50), body["balance"])

	w, body = s.do(t, http.MethodPost, "/api/credits/u1/ensure", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["created"])

	_, err := s.ledger.Debit(context.Background(), "u1", 8, credit.UsageNote{ToolName: "competitor-analysis", ToolDisplayName: "Competitor Analysis"})
	require.NoError(t, err)

	w, body = s.do(t, http.MethodGet, "/api/credits/u1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(42), body["balance"])
	assert.Equal(t, float64(8), body["totalUsed"])

	w, body = s.do(t, http.MethodGet, "/api/credits/u1/usage?page=1&page_size=10", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "competitor-analysis", items[0].(map[string]any)["toolName"])
	meta := body["meta"].(map[string]any)
	assert.Equal(t, float64(1), meta["total"])
}

func signToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		Audience:  jwt.ClaimStrings{"authenticated"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestJWTSubjectOverridesUserID(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) { cfg.Security.JWT.Enabled = true }, nil)
	s.seed(t, "owner", 50)
	s.seed(t, "victim", 50)
	auth := map[string]string{"Authorization": "Bearer " + signToken(t, "owner")}

	w, body := s.do(t, http.MethodPost, "/api/competitor-analysis", map[string]any{
		"userId":        "victim",
		"competitorUrl": "example.com",
	}, auth)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(42), body["creditsRemaining"])
	assert.Equal(t, 1, s.store.UsageCount("owner"))
	assert.Zero(t, s.store.UsageCount("victim"))

	w, _ = s.do(t, http.MethodGet, "/api/credits/victim", nil, auth)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body = s.do(t, http.MethodPost, "/api/competitor-analysis", map[string]any{"competitorUrl": "example.com"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "TOKEN_MISSING", body["code"])

	w, _ = s.do(t, http.MethodGet, "/api/tools", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitRejects(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) { cfg.Security.RateLimit.Enabled = true }, nil)
	w, body := s.do(t, http.MethodGet, "/api/tools", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "TOO_MANY_REQUESTS", body["code"])

	w, _ = s.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadiness(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{}
	r := New(cfg, Handlers{
		Health: handler.NewHealthHandler("test",
			handler.Dependency{Name: "store", Checker: memory.New(), Required: true},
			handler.Dependency{Name: "redis", Checker: failingCheck{}},
		),
	}, nil)

	w := httptest.NewRecorder()
	r.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"degraded"`)

	r = New(cfg, Handlers{
		Health: handler.NewHealthHandler("test", handler.Dependency{Name: "store", Checker: failingCheck{}, Required: true}),
	}, nil)
	w = httptest.NewRecorder()
	r.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
