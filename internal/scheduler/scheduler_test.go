package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/statebridge/internal/foundation/errors"
)

func TestScheduler_RunsJob(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)

	var runs atomic.Int32
	require.NoError(t, s.Every("flush", 5*time.Millisecond, func() { runs.Add(1) }))
	s.Start()
	s.Start()

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())

	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, after, runs.Load())
}

func TestScheduler_NoOverlap(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)

	var active, maxActive, runs atomic.Int32
	require.NoError(t, s.Every("slow", 2*time.Millisecond, func() {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		active.Add(-1)
		runs.Add(1)
	}))
	s.Start()
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())
	require.Equal(t, int32(1), maxActive.Load())
}

func TestScheduler_RejectsNonPositiveInterval(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)
	defer func() { _ = s.Stop() }()

	err = s.Every("flush", 0, func() {})
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestManual(t *testing.T) {
	m := NewManual()
	var runs int
	require.NoError(t, m.Every("flush", time.Second, func() { runs++ }))

	m.Tick()
	require.Equal(t, 0, runs)

	m.Start()
	require.True(t, m.Started())
	m.Tick()
	m.Tick()
	require.Equal(t, 2, runs)
	require.Equal(t, []string{"flush"}, m.Jobs())

	require.NoError(t, m.Stop())
	m.Tick()
	require.Equal(t, 2, runs)
}
