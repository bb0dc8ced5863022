// Package admission provides HTTP transport models.
package admission

import "time"

type httpCheckRequest struct {
	Identifier string `json:"identifier"`
	Scope      string `json:"scope"`
	Endpoint   string `json:"endpoint"`
	LatencyMS  int64  `json:"latencyMS"`
	SizeBytes  int64  `json:"sizeBytes"`
}

type httpCheckResponse struct {
	Allowed          bool              `json:"allowed"`
	Remaining        int64             `json:"remaining"`
	ResetAt          int64             `json:"resetAt"`
	RetryAfterMS     int64             `json:"retryAfterMS"`
	Headers          map[string]string `json:"headers"`
	Violation        bool              `json:"violation"`
	RateLimitedCount int               `json:"rateLimitedCount"`
}

type httpRuleRequest struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Algorithm        string   `json:"algorithm"`
	Scope            string   `json:"scope"`
	ScopeValue       string   `json:"scopeValue"`
	MaxRequests      int64    `json:"maxRequests"`
	WindowMS         int64    `json:"windowMS"`
	BurstMultiplier  float64  `json:"burstMultiplier"`
	BlockForMS       int64    `json:"blockForMS"`
	Action           string   `json:"action"`
	EndpointPatterns []string `json:"endpointPatterns"`
	Priority         int      `json:"priority"`
	Weight           float64  `json:"weight"`
	TTLMS            int64    `json:"ttlMS"`
	Enabled          *bool    `json:"enabled"`
}

type httpRuleResponse struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Algorithm        string    `json:"algorithm"`
	Scope            string    `json:"scope"`
	ScopeValue       string    `json:"scopeValue"`
	MaxRequests      int64     `json:"maxRequests"`
	WindowMS         int64     `json:"windowMS"`
	BurstMultiplier  float64   `json:"burstMultiplier"`
	BlockForMS       int64     `json:"blockForMS"`
	Action           string    `json:"action"`
	EndpointPatterns []string  `json:"endpointPatterns"`
	Priority         int       `json:"priority"`
	Weight           float64   `json:"weight"`
	TTLMS            int64     `json:"ttlMS"`
	Enabled          bool      `json:"enabled"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

type httpStatusResponse struct {
	RuleID     string `json:"ruleID"`
	RuleName   string `json:"ruleName"`
	Algorithm  string `json:"algorithm"`
	Action     string `json:"action"`
	Limit      int64  `json:"limit"`
	Remaining  int64  `json:"remaining"`
	ResetAfter int64  `json:"resetAfterMS"`
	Exhausted  bool   `json:"exhausted"`
}

type httpStatisticsResponse struct {
	TotalChecks   int64 `json:"totalChecks"`
	Allowed       int64 `json:"allowed"`
	Denied        int64 `json:"denied"`
	Violations    int64 `json:"violations"`
	RuleErrors    int64 `json:"ruleErrors"`
	EventsDropped int64 `json:"eventsDropped"`
	ActiveStates  int64 `json:"activeStates"`
	Rules         int64 `json:"rules"`
}

func toCheckRequest(req httpCheckRequest) (*CheckRequest, error) {
	scope, err := ParseScope(req.Scope)
	if err != nil {
		return nil, Wrap(CodeInvalidInput, err.Error(), ErrInvalidInput)
	}
	return &CheckRequest{
		Identifier: req.Identifier,
		Scope:      scope,
		Endpoint:   req.Endpoint,
		Latency:    time.Duration(req.LatencyMS) * time.Millisecond,
		Size:       req.SizeBytes,
	}, nil
}

func fromResult(result *Result) httpCheckResponse {
	if result == nil {
		return httpCheckResponse{}
	}
	resp := httpCheckResponse{
		Allowed:          result.Allowed,
		Remaining:        result.Remaining,
		RetryAfterMS:     result.RetryAfter.Milliseconds(),
		Headers:          result.Headers,
		Violation:        result.ViolationDetected,
		RateLimitedCount: result.RateLimitedCount,
	}
	if !result.ResetAt.IsZero() {
		resp.ResetAt = result.ResetAt.Unix()
	}
	return resp
}

func toRule(req httpRuleRequest) (*Rule, error) {
	algorithm, err := ParseAlgorithm(req.Algorithm)
	if err != nil {
		return nil, Wrap(CodeInvalidInput, err.Error(), ErrInvalidInput)
	}
	scope, err := ParseScope(req.Scope)
	if err != nil {
		return nil, Wrap(CodeInvalidInput, err.Error(), ErrInvalidInput)
	}
	action := ActionBlock
	if req.Action != "" {
		action, err = ParseAction(req.Action)
		if err != nil {
			return nil, Wrap(CodeInvalidInput, err.Error(), ErrInvalidInput)
		}
	}
	rule := &Rule{
		ID:               req.ID,
		Name:             req.Name,
		Algorithm:        algorithm,
		Scope:            scope,
		ScopeValue:       req.ScopeValue,
		MaxRequests:      req.MaxRequests,
		Window:           time.Duration(req.WindowMS) * time.Millisecond,
		BurstMultiplier:  req.BurstMultiplier,
		BlockFor:         time.Duration(req.BlockForMS) * time.Millisecond,
		Action:           action,
		EndpointPatterns: req.EndpointPatterns,
		Priority:         req.Priority,
		Weight:           req.Weight,
		TTL:              time.Duration(req.TTLMS) * time.Millisecond,
		Enabled:          true,
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	return rule, nil
}

func fromRule(rule *Rule) httpRuleResponse {
	if rule == nil {
		return httpRuleResponse{}
	}
	return httpRuleResponse{
		ID:               rule.ID,
		Name:             rule.Name,
		Algorithm:        rule.Algorithm.String(),
		Scope:            rule.Scope.String(),
		ScopeValue:       rule.ScopeValue,
		MaxRequests:      rule.MaxRequests,
		WindowMS:         rule.Window.Milliseconds(),
		BurstMultiplier:  rule.BurstMultiplier,
		BlockForMS:       rule.BlockFor.Milliseconds(),
		Action:           rule.Action.String(),
		EndpointPatterns: rule.EndpointPatterns,
		Priority:         rule.Priority,
		Weight:           rule.Weight,
		TTLMS:            rule.TTL.Milliseconds(),
		Enabled:          rule.Enabled,
		CreatedAt:        rule.CreatedAt,
		UpdatedAt:        rule.UpdatedAt,
	}
}

func fromRuleStatus(status RuleStatus) httpStatusResponse {
	return httpStatusResponse{
		RuleID:     status.RuleID,
		RuleName:   status.RuleName,
		Algorithm:  status.Algorithm.String(),
		Action:     status.Action.String(),
		Limit:      status.Limit,
		Remaining:  status.Remaining,
		ResetAfter: status.ResetAfter.Milliseconds(),
		Exhausted:  status.Exhausted,
	}
}

func fromStatistics(stats Statistics) httpStatisticsResponse {
	return httpStatisticsResponse{
		TotalChecks:   stats.TotalChecks,
		Allowed:       stats.Allowed,
		Denied:        stats.Denied,
		Violations:    stats.Violations,
		RuleErrors:    stats.RuleErrors,
		EventsDropped: stats.EventsDropped,
		ActiveStates:  stats.ActiveStates,
		Rules:         stats.Rules,
	}
}
