package admission

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testApplication(t *testing.T, mutate func(*Config)) (*Application, http.Handler) {
	t.Helper()
	cfg := defaultConfig()
	cfg.HTTPListenAddr = ":0"
	if mutate != nil {
		mutate(cfg)
	}
	app, err := NewApplication(cfg)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	handler, err := app.Transport().Handler()
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	return app, handler
}

func postJSON(t *testing.T, handler http.Handler, path string, payload any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHTTP_CheckFlow(t *testing.T) {
	t.Parallel()

	_, handler := testApplication(t, nil)

	createBody := httpRuleRequest{
		ID:          "r1",
		Name:        "per-user",
		Algorithm:   "sliding_window",
		Scope:       "user",
		MaxRequests: 2,
		WindowMS:    60_000,
		Action:      "block",
	}
	rec := postJSON(t, handler, "/v1/admin/rules", createBody, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create rule: expected 201, got %d body %s", rec.Code, rec.Body.String())
	}

	check := httpCheckRequest{Identifier: "alice", Scope: "user"}
	for i := 0; i < 2; i++ {
		rec = postJSON(t, handler, "/v1/check", check, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("check %d: expected 200, got %d", i, rec.Code)
		}
	}

	rec = postJSON(t, handler, "/v1/check", check, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 at limit, got %d", rec.Code)
	}
	if rec.Header().Get(HeaderRetry) == "" {
		t.Fatalf("expected Retry-After header on denial")
	}
	if rec.Header().Get(HeaderViolation) != "true" {
		t.Fatalf("expected violation header, got %q", rec.Header().Get(HeaderViolation))
	}

	var resp httpCheckResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Allowed || !resp.Violation {
		t.Fatalf("unexpected body: %#v", resp)
	}
}

func TestHTTP_CheckRejectsBadScope(t *testing.T) {
	t.Parallel()

	_, handler := testApplication(t, nil)
	rec := postJSON(t, handler, "/v1/check", httpCheckRequest{Identifier: "a", Scope: "galaxy"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHTTP_AdminAuth(t *testing.T) {
	t.Parallel()

	_, handler := testApplication(t, func(cfg *Config) {
		cfg.EnableAuth = true
		cfg.AdminToken = "sekrit"
	})

	body := httpRuleRequest{Algorithm: "token_bucket", Scope: "ip", MaxRequests: 5, WindowMS: 1000}
	rec := postJSON(t, handler, "/v1/admin/rules", body, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	rec = postJSON(t, handler, "/v1/admin/rules", body, map[string]string{"Authorization": "Bearer sekrit"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 with token, got %d body %s", rec.Code, rec.Body.String())
	}

	// Unauthenticated checks stay open; auth guards only the admin
	// surface.
	rec = postJSON(t, handler, "/v1/check", httpCheckRequest{Identifier: "a", Scope: "ip"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected open check endpoint, got %d", rec.Code)
	}
}

func TestHTTP_RuleCRUD(t *testing.T) {
	t.Parallel()

	_, handler := testApplication(t, nil)

	body := httpRuleRequest{ID: "r1", Algorithm: "fixed_window", Scope: "api_key", MaxRequests: 5, WindowMS: 1000}
	if rec := postJSON(t, handler, "/v1/admin/rules", body, nil); rec.Code != http.StatusCreated {
		t.Fatalf("create: got %d", rec.Code)
	}
	if rec := postJSON(t, handler, "/v1/admin/rules", body, nil); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate create: expected 409, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/rules?id=r1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}
	var rule httpRuleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &rule); err != nil {
		t.Fatalf("decode rule: %v", err)
	}
	if rule.ID != "r1" || rule.Algorithm != "fixed_window" || rule.ScopeValue != "*" {
		t.Fatalf("unexpected rule: %#v", rule)
	}

	update := body
	update.MaxRequests = 50
	updateReq := httptest.NewRequest(http.MethodPut, "/v1/admin/rules", bytes.NewReader(mustJSON(t, update)))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, updateReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", rec.Code)
	}

	listReq := httptest.NewRequest(http.MethodGet, "/v1/admin/rules/list", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, listReq)
	var rules []httpRuleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &rules); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(rules) != 1 || rules[0].MaxRequests != 50 {
		t.Fatalf("unexpected list: %#v", rules)
	}

	deleteReq := httptest.NewRequest(http.MethodDelete, "/v1/admin/rules?id=r1", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, deleteReq)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/admin/rules?id=r1", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", rec.Code)
	}
}

func TestHTTP_StatusAndReset(t *testing.T) {
	t.Parallel()

	_, handler := testApplication(t, nil)

	body := httpRuleRequest{ID: "r1", Algorithm: "sliding_window", Scope: "user", MaxRequests: 1, WindowMS: 60_000}
	postJSON(t, handler, "/v1/admin/rules", body, nil)
	postJSON(t, handler, "/v1/check", httpCheckRequest{Identifier: "alice", Scope: "user"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/status?scope=user&identifier=alice", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	var statuses []httpStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &statuses); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if len(statuses) != 1 || statuses[0].Remaining != 0 || !statuses[0].Exhausted {
		t.Fatalf("unexpected status: %#v", statuses)
	}

	resetReq := httptest.NewRequest(http.MethodPost, "/v1/reset?scope=user&identifier=alice", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, resetReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset: expected 200, got %d", rec.Code)
	}

	rec = postJSON(t, handler, "/v1/check", httpCheckRequest{Identifier: "alice", Scope: "user"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected quota restored after reset, got %d", rec.Code)
	}
}

func TestHTTP_StatisticsAndHealth(t *testing.T) {
	t.Parallel()

	_, handler := testApplication(t, nil)

	postJSON(t, handler, "/v1/check", httpCheckRequest{Identifier: "alice", Scope: "user"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/statistics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	var stats httpStatisticsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalChecks != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", rec.Code)
	}

	// The application was never started, so readiness reports down.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz: expected 503 before start, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics/snapshot", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics snapshot: expected 200, got %d", rec.Code)
	}
}

func TestHTTP_DrainRejectsDuringShutdown(t *testing.T) {
	t.Parallel()

	app, handler := testApplication(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := app.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	rec := postJSON(t, handler, "/v1/check", httpCheckRequest{Identifier: "a", Scope: "user"}, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while draining, got %d", rec.Code)
	}
}

func TestHTTP_RejectsUnknownFields(t *testing.T) {
	t.Parallel()

	_, handler := testApplication(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/check", bytes.NewReader([]byte(`{"identifier":"a","scope":"user","bogus":1}`)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown fields, got %d", rec.Code)
	}
}

func mustJSON(t *testing.T, payload any) []byte {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return body
}
