// Package admission provides rule seeding from YAML files.
package admission

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type rulesFile struct {
	Rules []ruleSpec `yaml:"rules"`
}

type ruleSpec struct {
	ID               string         `yaml:"id"`
	Name             string         `yaml:"name"`
	Algorithm        string         `yaml:"algorithm"`
	Scope            string         `yaml:"scope"`
	ScopeValue       string         `yaml:"scope_value"`
	MaxRequests      int64          `yaml:"max_requests"`
	Window           *durationValue `yaml:"window"`
	BurstMultiplier  float64        `yaml:"burst_multiplier"`
	BlockFor         *durationValue `yaml:"block_for"`
	Action           string         `yaml:"action"`
	EndpointPatterns []string       `yaml:"endpoint_patterns"`
	Priority         int            `yaml:"priority"`
	Weight           float64        `yaml:"weight"`
	TTL              *durationValue `yaml:"ttl"`
	Enabled          *bool          `yaml:"enabled"`
}

// LoadRulesFile reads seed rules from a YAML file. Rules are returned
// unvalidated; registration validates them.
func LoadRulesFile(path string) ([]*Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", path, err)
	}

	rules := make([]*Rule, 0, len(file.Rules))
	for i, spec := range file.Rules {
		rule, err := spec.toRule()
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (spec ruleSpec) toRule() (*Rule, error) {
	algorithm, err := ParseAlgorithm(spec.Algorithm)
	if err != nil {
		return nil, err
	}
	scope, err := ParseScope(spec.Scope)
	if err != nil {
		return nil, err
	}
	action := ActionBlock
	if spec.Action != "" {
		action, err = ParseAction(spec.Action)
		if err != nil {
			return nil, err
		}
	}

	rule := &Rule{
		ID:               spec.ID,
		Name:             spec.Name,
		Algorithm:        algorithm,
		Scope:            scope,
		ScopeValue:       spec.ScopeValue,
		MaxRequests:      spec.MaxRequests,
		BurstMultiplier:  spec.BurstMultiplier,
		Action:           action,
		EndpointPatterns: spec.EndpointPatterns,
		Priority:         spec.Priority,
		Weight:           spec.Weight,
		Enabled:          true,
	}
	if spec.Window != nil && spec.Window.Set {
		rule.Window = spec.Window.Value
	}
	if spec.BlockFor != nil && spec.BlockFor.Set {
		rule.BlockFor = spec.BlockFor.Value
	}
	if spec.TTL != nil && spec.TTL.Set {
		rule.TTL = spec.TTL.Value
	}
	if spec.Enabled != nil {
		rule.Enabled = *spec.Enabled
	}
	return rule, nil
}
