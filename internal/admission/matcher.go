// Package admission provides rule matching.
package admission

import "path"

// Applicable returns the enabled rules matching a request, in
// evaluation order: priority descending, ties in insertion order.
// TTL-expired rules are skipped but stay registered.
func (rr *RuleRegistry) Applicable(identifier string, scope Scope, endpoint string) []*Rule {
	now := rr.now()

	var matched []*Rule
	for _, rule := range rr.orderedRules() {
		if !rule.Enabled {
			continue
		}
		if rule.Scope != scope {
			continue
		}
		if rule.Expired(now) {
			continue
		}
		if rule.ScopeValue != "*" && rule.ScopeValue != identifier {
			continue
		}
		if !matchesEndpoint(rule.EndpointPatterns, endpoint) {
			continue
		}
		matched = append(matched, rule)
	}
	return matched
}

// matchesEndpoint reports whether an endpoint matches at least one
// glob pattern. An empty pattern list matches any endpoint.
func matchesEndpoint(patterns []string, endpoint string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if pattern == "*" {
			return true
		}
		if ok, err := path.Match(pattern, endpoint); err == nil && ok {
			return true
		}
	}
	return false
}
