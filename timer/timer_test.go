package timer

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBurstOfDueTimersAllFire(t *testing.T) {
	m := NewTimerManager()
	t.Cleanup(m.Stop)

	// 同一个tick到期的任务数远超任何内部缓冲
	var fired int64
	for i := 0; i < 1500; i++ {
		m.AddTimer(0, 0, func() {
			atomic.AddInt64(&fired, 1)
		})
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&fired) == 1500
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, 0, m.Pending())
}

func TestRemoveTimerCancels(t *testing.T) {
	m := NewTimerManager()
	t.Cleanup(m.Stop)

	var fired int64
	id := m.AddTimer(50*time.Millisecond, 0, func() {
		atomic.AddInt64(&fired, 1)
	})
	m.RemoveTimer(id)
	assert.Equal(t, 0, m.Pending())

	time.Sleep(300 * time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt64(&fired))
}

func TestIntervalTaskRepeats(t *testing.T) {
	m := NewTimerManager()
	t.Cleanup(m.Stop)

	var fired int64
	id := m.AddTimer(0, 50*time.Millisecond, func() {
		atomic.AddInt64(&fired, 1)
	})

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&fired) >= 3
	}, 3*time.Second, 20*time.Millisecond)
	m.RemoveTimer(id)
}
