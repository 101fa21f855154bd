package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallerLimiterBurst(t *testing.T) {
	l := newCallerLimiter(100, 1, 0)

	allowed := 0
	for i := 0; i < 5; i++ {
		if l.allow("caller-a") {
			allowed++
		}
	}
	assert.Equal(t, 2, allowed, "per-caller burst is twice the rate")
	assert.True(t, l.allow("caller-b"), "other callers have their own bucket")
}

func TestCallerLimiterGlobal(t *testing.T) {
	l := newCallerLimiter(1, 0, 0)

	allowed := 0
	for i := 0; i < 5; i++ {
		if l.allow("anyone") {
			allowed++
		}
	}
	assert.Equal(t, 2, allowed, "global burst caps even a single caller")
}

func TestCallerLimiterExplicitBurst(t *testing.T) {
	l := newCallerLimiter(100, 1, 5)

	allowed := 0
	for i := 0; i < 10; i++ {
		if l.allow("caller-a") {
			allowed++
		}
	}
	assert.Equal(t, 5, allowed)
}

func TestCallerLimiterDisabled(t *testing.T) {
	l := newCallerLimiter(0, 0, 0)
	for i := 0; i < 50; i++ {
		assert.True(t, l.allow("x"))
	}
}
