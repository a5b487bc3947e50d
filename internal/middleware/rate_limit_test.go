package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucketDrains(t *testing.T) {
	tb := NewTokenBucket(3, 1)

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow(), "empty bucket refuses")
}

func TestTokenBucketRefillCapped(t *testing.T) {
	tb := NewTokenBucket(2, 1000)
	tb.Allow()
	tb.Allow()
	assert.False(t, tb.Allow())

	// Fake a second of elapsed time; refill must not exceed capacity.
	tb.mu.Lock()
	tb.lastRefill = tb.lastRefill.Add(-5 * time.Second)
	tb.mu.Unlock()

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow(), "capacity caps the refill")
}
