// Package admission provides HTTP handlers.
package admission

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
)

const defaultMaxBodyBytes = 1 << 20

type httpErrorResponse struct {
	Error string `json:"error"`
}

func (t *HTTPTransport) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/check", t.handleCheck)
	mux.HandleFunc("/v1/status", t.handleStatus)
	mux.HandleFunc("/v1/reset", t.handleReset)
	mux.HandleFunc("/v1/statistics", t.handleStatistics)
	mux.HandleFunc("/v1/events", t.handleEvents)
	mux.HandleFunc("/v1/admin/rules", t.handleRules)
	mux.HandleFunc("/v1/admin/rules/list", t.handleRulesList)
	mux.HandleFunc("/healthz", t.handleHealth)
	mux.HandleFunc("/readyz", t.handleReady)
	mux.HandleFunc("/metrics/snapshot", t.handleMetricsSnapshot)
	if t.prom != nil {
		mux.Handle("/metrics", t.prom.Handler())
	}
}

func (t *HTTPTransport) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var httpReq httpCheckRequest
	if err := t.decodeJSON(w, r, &httpReq); err != nil {
		t.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	req, err := toCheckRequest(httpReq)
	if err != nil {
		t.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := t.requestContext(r)
	defer cancel()

	result, err := t.limiter.Check(ctx, req)
	if err != nil {
		t.writeCodedError(w, r, err)
		return
	}
	for name, value := range result.Headers {
		w.Header().Set(name, value)
	}
	status := http.StatusOK
	if !result.Allowed {
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, fromResult(result))
}

func (t *HTTPTransport) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	identifier, scope, endpoint, err := scopeQuery(r)
	if err != nil {
		t.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := t.requestContext(r)
	defer cancel()

	statuses := t.limiter.Status(ctx, identifier, scope, endpoint)
	resp := make([]httpStatusResponse, len(statuses))
	for i, status := range statuses {
		resp[i] = fromRuleStatus(status)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (t *HTTPTransport) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !t.authorizeAdmin(w, r) {
		return
	}
	identifier, scope, endpoint, err := scopeQuery(r)
	if err != nil {
		t.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := t.requestContext(r)
	defer cancel()

	cleared := t.limiter.Reset(ctx, identifier, scope, endpoint)
	writeJSON(w, http.StatusOK, map[string]bool{"cleared": cleared})
}

func (t *HTTPTransport) handleStatistics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, fromStatistics(t.limiter.Statistics()))
}

func (t *HTTPTransport) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if t.sink == nil {
		writeJSON(w, http.StatusOK, []Event{})
		return
	}
	events := t.sink.Recent()
	if events == nil {
		events = []Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (t *HTTPTransport) handleRules(w http.ResponseWriter, r *http.Request) {
	if !t.authorizeAdmin(w, r) {
		return
	}
	switch r.Method {
	case http.MethodPost:
		t.handleCreateRule(w, r)
	case http.MethodPut:
		t.handleUpdateRule(w, r)
	case http.MethodDelete:
		t.handleDeleteRule(w, r)
	case http.MethodGet:
		t.handleGetRule(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (t *HTTPTransport) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var httpReq httpRuleRequest
	if err := t.decodeJSON(w, r, &httpReq); err != nil {
		t.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	rule, err := toRule(httpReq)
	if err != nil {
		t.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	added, err := t.limiter.AddRule(r.Context(), rule)
	if err != nil {
		t.writeCodedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, fromRule(added))
}

func (t *HTTPTransport) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var httpReq httpRuleRequest
	if err := t.decodeJSON(w, r, &httpReq); err != nil {
		t.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	rule, err := toRule(httpReq)
	if err != nil {
		t.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	updated, err := t.limiter.UpdateRule(r.Context(), rule)
	if err != nil {
		t.writeCodedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fromRule(updated))
}

func (t *HTTPTransport) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		t.writeError(w, r, http.StatusBadRequest, ErrInvalidInput)
		return
	}
	if !t.limiter.RemoveRule(r.Context(), id) {
		t.writeError(w, r, http.StatusNotFound, ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (t *HTTPTransport) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		t.writeError(w, r, http.StatusBadRequest, ErrInvalidInput)
		return
	}
	rule, ok := t.limiter.Rules().Get(id)
	if !ok {
		t.writeError(w, r, http.StatusNotFound, ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, fromRule(rule))
}

func (t *HTTPTransport) handleRulesList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !t.authorizeAdmin(w, r) {
		return
	}
	rules := t.limiter.Rules().List()
	resp := make([]httpRuleResponse, len(rules))
	for i, rule := range rules {
		resp[i] = fromRule(rule)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (t *HTTPTransport) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (t *HTTPTransport) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if t.appReady != nil && t.appReady() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
}

func (t *HTTPTransport) handleMetricsSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if t.mem == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, t.mem.Snapshot())
}

func scopeQuery(r *http.Request) (string, Scope, string, error) {
	query := r.URL.Query()
	scopeLabel := query.Get("scope")
	if scopeLabel == "" {
		return "", 0, "", Wrap(CodeInvalidInput, "scope is required", ErrInvalidInput)
	}
	scope, err := ParseScope(scopeLabel)
	if err != nil {
		return "", 0, "", Wrap(CodeInvalidInput, err.Error(), ErrInvalidInput)
	}
	return query.Get("identifier"), scope, query.Get("endpoint"), nil
}

func (t *HTTPTransport) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if t.requestTimeout <= 0 {
		return r.Context(), func() {}
	}
	return context.WithTimeout(r.Context(), t.requestTimeout)
}

func (t *HTTPTransport) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return ErrInvalidInput
	}
	maxBytes := t.maxBodyBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBodyBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return ErrInvalidInput
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return ErrInvalidInput
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (t *HTTPTransport) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if t != nil {
		t.logRequestError(r, status, err)
	}
	writeJSON(w, status, httpErrorResponse{Error: err.Error()})
}

func (t *HTTPTransport) writeCodedError(w http.ResponseWriter, r *http.Request, err error) {
	t.writeError(w, r, statusForCode(CodeOf(err)), err)
}

func statusForCode(code ErrorCode) int {
	switch code {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func (t *HTTPTransport) authorizeAdmin(w http.ResponseWriter, r *http.Request) bool {
	if t == nil || !t.enableAuth {
		return true
	}
	expected := "Bearer " + t.adminToken
	if r.Header.Get("Authorization") != expected {
		t.writeError(w, r, http.StatusUnauthorized, Wrap(CodeUnauthorized, "unauthorized", nil))
		return false
	}
	return true
}

func (t *HTTPTransport) logRequestError(r *http.Request, status int, err error) {
	if t == nil || t.logger == nil || r == nil || err == nil {
		return
	}
	fields := map[string]any{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": status,
		"error":  err.Error(),
	}
	if status >= http.StatusInternalServerError {
		t.logger.Error("http request error", fields)
		return
	}
	t.logger.Info("http request error", fields)
}
