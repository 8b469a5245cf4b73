package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThrottleAcquireInMemory(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	// no reachable Redis in tests, so the process-local path is exercised
	th := RedisThrottle{}

	assert.True(t, th.Acquire("throttle-test-a", 200*time.Millisecond))
	assert.False(t, th.Acquire("throttle-test-a", 200*time.Millisecond), "slot still held")
	assert.True(t, th.Acquire("throttle-test-b", 200*time.Millisecond), "distinct keys do not contend")

	time.Sleep(250 * time.Millisecond)
	assert.True(t, th.Acquire("throttle-test-a", 200*time.Millisecond), "expired slot is reclaimable")
}
