package timing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsInOrder(t *testing.T) {
	tt := NewTracker()
	clock := time.Unix(0, 0)
	tt.now = func() time.Time { return clock }

	ctx := tt.StartTiming("preprocess")
	clock = clock.Add(30 * time.Millisecond)
	assert.Equal(t, 30*time.Millisecond, tt.EndTiming(ctx))

	ctx = tt.StartTiming("separate")
	clock = clock.Add(5 * time.Millisecond)
	tt.EndTiming(ctx)

	ctx = tt.StartTiming("preprocess")
	clock = clock.Add(10 * time.Millisecond)
	tt.EndTiming(ctx)

	assert.Equal(t, []string{"preprocess", "separate"}, tt.Operations())
	assert.Equal(t, []time.Duration{30 * time.Millisecond, 10 * time.Millisecond}, tt.GetTimings("preprocess"))
	assert.Equal(t, 40*time.Millisecond, tt.Totals()["preprocess"])
	assert.Nil(t, tt.GetTimings("missing"))
}

func TestEndTimingWithoutStart(t *testing.T) {
	tt := NewTracker()

	assert.Zero(t, tt.EndTiming(context.Background()))
	assert.Empty(t, tt.Operations())
}
