package common

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSleep_ReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestJitterAndBetween(t *testing.T) {
	for i := 0; i < 100; i++ {
		j := Jitter(200*time.Millisecond, 100*time.Millisecond)
		assert.GreaterOrEqual(t, j, 200*time.Millisecond)
		assert.Less(t, j, 300*time.Millisecond)

		b := Between(150*time.Millisecond, 250*time.Millisecond)
		assert.GreaterOrEqual(t, b, 150*time.Millisecond)
		assert.LessOrEqual(t, b, 250*time.Millisecond)
	}
	assert.Equal(t, time.Second, Jitter(time.Second, 0))
	assert.Equal(t, time.Second, Between(time.Second, time.Second))
}
