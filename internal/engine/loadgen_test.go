package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadRunsForDuration(t *testing.T) {
	h := StartLoad(context.Background(), 50*time.Millisecond, 1)
	assert.True(t, h.Active())

	assert.Eventually(t, func() bool { return !h.Active() }, 2*time.Second, 5*time.Millisecond)
	h.Wait()
	assert.False(t, h.Active())
}

func TestLoadWaitBlocksUntilDurationElapses(t *testing.T) {
	start := time.Now()
	h := StartLoad(context.Background(), 80*time.Millisecond, 2)
	h.Wait()
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.False(t, h.Active())
}

func TestLoadFollowsParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := StartLoad(ctx, time.Hour, 1)
	cancel()
	h.Wait()
	assert.False(t, h.Active())
}
