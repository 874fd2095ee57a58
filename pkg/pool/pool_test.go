package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTask struct {
	preHookCalls *int32
	runCalls     *int32
	done         chan struct{}
}

func (t *countingTask) RunInLock(workerID int) {
	atomic.AddInt32(t.preHookCalls, 1)
}

func (t *countingTask) Run(workerID int, taskID uint64) {
	atomic.AddInt32(t.runCalls, 1)
	close(t.done)
}

func TestPool_RunsQueuedTasks(t *testing.T) {
	p := New(4)
	p.Start(2)
	defer p.Stop()

	var preHooks, runs int32
	const n = 20
	dones := make([]chan struct{}, n)

	for i := 0; i < n; i++ {
		dones[i] = make(chan struct{})
		task := &countingTask{preHookCalls: &preHooks, runCalls: &runs, done: dones[i]}
		require.NoError(t, p.AddTask(context.Background(), task))
	}

	for _, d := range dones {
		select {
		case <-d:
		case <-time.After(time.Second):
			t.Fatal("task did not complete in time")
		}
	}

	assert.EqualValues(t, n, atomic.LoadInt32(&preHooks))
	assert.EqualValues(t, n, atomic.LoadInt32(&runs))
}

func TestPool_TryAddTaskFullReturnsErrFull(t *testing.T) {
	p := New(1)
	// no workers started: the one queue slot fills and stays full.
	blocker := &countingTask{preHookCalls: new(int32), runCalls: new(int32), done: make(chan struct{})}

	require.NoError(t, p.TryAddTask(blocker))
	err := p.TryAddTask(blocker)
	assert.ErrorIs(t, err, ErrFull)
}

func TestPool_StopRejectsNewTasks(t *testing.T) {
	p := New(4)
	p.Start(1)
	p.Stop()

	task := &countingTask{preHookCalls: new(int32), runCalls: new(int32), done: make(chan struct{})}
	err := p.AddTask(context.Background(), task)
	assert.ErrorIs(t, err, ErrStopped)
}

func TestPool_WorkerIDsAreStableSmallIntegers(t *testing.T) {
	p := New(8)
	p.Start(3)
	defer p.Stop()

	seen := make(map[int]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 30; i++ {
		wg.Add(1)
		task := &idTrackingTask{wg: &wg, seen: seen, mu: &mu}
		require.NoError(t, p.AddTask(context.Background(), task))
	}
	wg.Wait()

	for id := range seen {
		assert.GreaterOrEqual(t, id, 0)
		assert.Less(t, id, 3)
	}
}

type idTrackingTask struct {
	wg   *sync.WaitGroup
	seen map[int]bool
	mu   *sync.Mutex
}

func (t *idTrackingTask) RunInLock(workerID int) {}

func (t *idTrackingTask) Run(workerID int, taskID uint64) {
	t.mu.Lock()
	t.seen[workerID] = true
	t.mu.Unlock()
	t.wg.Done()
}
