// Package admission provides scope key construction.
package admission

// ScopeKeyBuilder builds the state store addresses for quota state.
// The same (rule, identifier) pair always yields the same key, and the
// rule id prefix keeps different rules' state disjoint even when their
// scope keys collide.
type ScopeKeyBuilder struct {
	bufPool *ByteBufferPool
}

// NewScopeKeyBuilder constructs a builder with pooled buffers.
func NewScopeKeyBuilder() *ScopeKeyBuilder {
	return &ScopeKeyBuilder{bufPool: NewByteBufferPool(256)}
}

// StateKey builds the store key for one rule and caller.
func (kb *ScopeKeyBuilder) StateKey(rule *Rule, identifier string) []byte {
	if kb == nil || kb.bufPool == nil {
		return []byte(rule.ID + "\x1f" + scopeKeySuffix(rule, identifier))
	}
	buf := kb.bufPool.Get()
	buf = append(buf, rule.ID...)
	buf = append(buf, '\x1f')
	buf = append(buf, rule.Scope.String()...)
	buf = append(buf, '\x1f')
	buf = append(buf, rule.ScopeValue...)
	buf = append(buf, '\x1f')
	buf = append(buf, identifier...)
	return buf
}

// ReleaseKey returns a buffer to the pool.
func (kb *ScopeKeyBuilder) ReleaseKey(b []byte) {
	if kb == nil || kb.bufPool == nil {
		return
	}
	kb.bufPool.Put(b)
}

// KeyToString converts key bytes to a string.
func (kb *ScopeKeyBuilder) KeyToString(b []byte) string {
	return string(b)
}

func scopeKeySuffix(rule *Rule, identifier string) string {
	return rule.Scope.String() + "\x1f" + rule.ScopeValue + "\x1f" + identifier
}
