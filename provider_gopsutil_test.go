package main

import (
	"context"
	"os"
	"testing"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGopsutilProvider_ProcessesReusesHandles(t *testing.T) {
	ctx := context.Background()
	p := newGopsutilProvider()

	stats, err := p.Processes(ctx)
	if err != nil {
		t.Skipf("process table unavailable: %v", err)
	}

	self := int32(os.Getpid())
	var found bool
	for _, s := range stats {
		if s.PID == self {
			found = true
			assert.NotEmpty(t, s.Name)
		}
	}
	require.True(t, found, "own pid %d missing from process list", self)

	cached := p.procs[self]
	require.NotNil(t, cached)

	_, err = p.Processes(ctx)
	require.NoError(t, err)
	assert.Same(t, cached, p.procs[self])
}

func TestGopsutilProvider_SamplesHost(t *testing.T) {
	ctx := context.Background()
	s := newSampler(ctx, newGopsutilProvider(), discardLogger())

	snap, err := s.Sample(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, snap.TS)
	assert.NotEmpty(t, snap.System.OS)
	assert.LessOrEqual(t, len(snap.Processes), maxProcesses)
	if snap.Network != nil {
		assert.GreaterOrEqual(t, snap.Network.RecvSpeed, 0.0)
		assert.GreaterOrEqual(t, snap.Network.SendSpeed, 0.0)
	}
}

func TestGopsutilProvider_ProcessesReplacesReusedPID(t *testing.T) {
	ctx := context.Background()
	self := int32(os.Getpid())
	if self == 1 {
		t.Skip("test process is pid 1")
	}

	p := newGopsutilProvider()
	if _, err := p.Processes(ctx); err != nil {
		t.Skipf("process table unavailable: %v", err)
	}
	ownName, err := p.procs[self].NameWithContext(ctx)
	require.NoError(t, err)

	// A handle for another process filed under our PID stands in for a
	// PID that was recycled since the last call.
	stale, err := process.NewProcessWithContext(ctx, 1)
	if err != nil {
		t.Skipf("pid 1 not inspectable: %v", err)
	}
	staleCreated, err := stale.CreateTimeWithContext(ctx)
	if err != nil {
		t.Skipf("pid 1 create time unavailable: %v", err)
	}
	ownCreated, err := p.procs[self].CreateTimeWithContext(ctx)
	require.NoError(t, err)
	if staleCreated == ownCreated {
		t.Skip("pid 1 and test process share a create time")
	}
	p.procs[self] = stale

	stats, err := p.Processes(ctx)
	require.NoError(t, err)
	assert.NotSame(t, stale, p.procs[self])
	for _, s := range stats {
		if s.PID == self {
			assert.Equal(t, ownName, s.Name)
		}
	}
}

func TestSameProcess(t *testing.T) {
	ctx := context.Background()
	self, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	require.NoError(t, err)
	again, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	require.NoError(t, err)
	if _, err := self.CreateTimeWithContext(ctx); err != nil {
		t.Skipf("create time unavailable: %v", err)
	}

	assert.True(t, sameProcess(ctx, self, again))
	assert.False(t, sameProcess(ctx, self, &process.Process{Pid: -1}))
}
