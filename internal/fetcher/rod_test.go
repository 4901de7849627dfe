package fetcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaceGate_FirstCallPassesImmediately(t *testing.T) {
	g := &paceGate{interval: time.Minute}
	start := time.Now()
	require.NoError(t, g.wait(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
}

func TestPaceGate_CancelledWaitReleasesItsSlot(t *testing.T) {
	g := &paceGate{interval: time.Minute}
	require.NoError(t, g.wait(context.Background()))
	reserved := g.last

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, g.wait(ctx), context.Canceled)
	assert.True(t, g.last.Equal(reserved), "A cancelled wait must not consume a pacing slot")
}

func TestPaceGate_CompletedWaitKeepsItsSlot(t *testing.T) {
	g := &paceGate{interval: 10 * time.Millisecond}
	require.NoError(t, g.wait(context.Background()))
	first := g.last

	require.NoError(t, g.wait(context.Background()))
	assert.True(t, g.last.After(first), "A completed wait advances the gate")
}
