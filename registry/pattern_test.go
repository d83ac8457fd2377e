package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPatternMatcherSingleWildcard(t *testing.T) {
	m := NewPatternMatcher()
	assert.True(t, m.Match("orders.create", "orders.*"))
	assert.False(t, m.Match("orders.create.v2", "orders.*"))
}

func TestPatternMatcherDoubleWildcardMatchesAnySuffix(t *testing.T) {
	m := NewPatternMatcher()
	assert.True(t, m.Match("orders.create.v2", "orders.**"))
	assert.True(t, m.Match("orders", "orders.**"))
	assert.True(t, m.Match("orders.a.b.c", "orders.**"))
}

func TestPatternMatcherExactMatch(t *testing.T) {
	m := NewPatternMatcher()
	assert.True(t, m.Match("orders.create", "orders.create"))
	assert.False(t, m.Match("orders.cancel", "orders.create"))
}

func TestPatternMatcherCompileIsMemoized(t *testing.T) {
	m := NewPatternMatcher()
	m.Match("a.b", "a.*")
	segs1 := m.compile("a.*")
	segs2 := m.compile("a.*")
	assert.Equal(t, segs1, segs2)
}
