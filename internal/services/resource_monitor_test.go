package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResourceMonitor_Defaults(t *testing.T) {
	m := NewResourceMonitor(0, nil)

	assert.Equal(t, 5*time.Minute, m.interval)
	assert.NotNil(t, m.logger)
	assert.NotNil(t, m.ctx)
	assert.NotNil(t, m.cancel)
}

func TestResourceMonitor_Sample(t *testing.T) {
	m := NewResourceMonitor(time.Minute, nil)

	// The CPU read blocks for the one-second comparison window.
	snap, err := m.Sample(context.Background())
	require.NoError(t, err)

	assert.False(t, snap.Timestamp.IsZero())
	assert.Greater(t, snap.Goroutines, 0)
	assert.Greater(t, snap.MemoryUsedMB, 0.0)
	assert.Greater(t, snap.MemoryPercent, 0.0)
	assert.LessOrEqual(t, snap.MemoryPercent, 100.0)
	assert.GreaterOrEqual(t, snap.CPUPercent, 0.0)

	last := m.Last()
	assert.True(t, last.Timestamp.Equal(snap.Timestamp))
	assert.Equal(t, snap.Goroutines, last.Goroutines)
}

func TestResourceMonitor_LastBeforeFirstSample(t *testing.T) {
	m := NewResourceMonitor(time.Minute, nil)
	assert.Zero(t, m.Last())
}

func TestResourceMonitor_SampleCancelled(t *testing.T) {
	m := NewResourceMonitor(time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Sample(ctx)
	assert.Error(t, err, "a cancelled context must abort the blocking CPU read")
}

func TestResourceMonitor_StartStop(t *testing.T) {
	m := NewResourceMonitor(50*time.Millisecond, nil)

	assert.NotPanics(t, func() {
		m.Start()
		time.Sleep(10 * time.Millisecond)
		m.Stop()
	})
}
