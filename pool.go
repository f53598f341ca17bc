// SPDX-License-Identifier: GPL-3.0-or-later

package udprpc

import (
	"sync"
	"sync/atomic"
)

// Task is a unit of work executed by a [WorkerPool].
type Task interface {
	Run()
}

// TaskFunc adapts a function to the [Task] interface.
type TaskFunc func()

var _ Task = TaskFunc(nil)

// Run implements [Task].
func (f TaskFunc) Run() {
	f()
}

// WorkerPool executes submitted tasks on its own goroutines.
type WorkerPool interface {
	// WakeUp submits task without blocking and returns false when the
	// pool does not accept it, because it is full or exiting.
	WakeUp(task Task) bool

	// Exiting returns whether the pool is shutting down.
	Exiting() bool
}

// TaskPool is a [WorkerPool] with a fixed number of workers and a bounded queue.
//
// Construct using [NewTaskPool]. Call Close to stop the workers.
type TaskPool struct {
	exiting atomic.Bool
	mu      sync.RWMutex
	tasks   chan Task
	wg      sync.WaitGroup
}

var _ WorkerPool = &TaskPool{}

// NewTaskPool starts a [*TaskPool] with the given number of workers that
// holds at most queueSize pending tasks. Both values are raised to one.
func NewTaskPool(workers, queueSize int) *TaskPool {
	workers = max(workers, 1)
	queueSize = max(queueSize, 1)
	p := &TaskPool{tasks: make(chan Task, queueSize)}
	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}
	return p
}

func (p *TaskPool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task.Run()
	}
}

// WakeUp implements [WorkerPool].
func (p *TaskPool) WakeUp(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.exiting.Load() {
		return false
	}
	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

// Exiting implements [WorkerPool].
func (p *TaskPool) Exiting() bool {
	return p.exiting.Load()
}

// Close stops accepting tasks, runs the queued ones, and waits for the
// workers to return. Calling Close more than once is safe.
func (p *TaskPool) Close() {
	p.mu.Lock()
	if !p.exiting.Swap(true) {
		close(p.tasks)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// exitedPool is the [WorkerPool] used when no shared pool is running.
type exitedPool struct{}

func (exitedPool) WakeUp(Task) bool { return false }
func (exitedPool) Exiting() bool    { return true }

var sharedQuestPool struct {
	mu   sync.Mutex
	pool WorkerPool
}

// StartSharedQuestPool creates the process-wide quest pool used by clients
// without a dedicated [Client.QuestProcessPool]. Call it once at startup; it
// returns false without side effects when a shared pool already exists.
func StartSharedQuestPool(workers, queueSize int) bool {
	sharedQuestPool.mu.Lock()
	defer sharedQuestPool.mu.Unlock()
	if sharedQuestPool.pool != nil {
		return false
	}
	sharedQuestPool.pool = NewTaskPool(workers, queueSize)
	return true
}

// SetSharedQuestPool replaces the process-wide quest pool and returns the
// previous one, which may be nil. The caller owns the previous pool.
func SetSharedQuestPool(pool WorkerPool) WorkerPool {
	sharedQuestPool.mu.Lock()
	defer sharedQuestPool.mu.Unlock()
	prev := sharedQuestPool.pool
	sharedQuestPool.pool = pool
	return prev
}

// SharedQuestPool returns the process-wide quest pool. Without one, the
// returned pool rejects every task and reports that it is exiting.
func SharedQuestPool() WorkerPool {
	sharedQuestPool.mu.Lock()
	defer sharedQuestPool.mu.Unlock()
	if sharedQuestPool.pool == nil {
		return exitedPool{}
	}
	return sharedQuestPool.pool
}

// StopSharedQuestPool removes the process-wide quest pool and, when it
// is a [*TaskPool], closes it. Call it once at shutdown.
func StopSharedQuestPool() {
	if pool, ok := SetSharedQuestPool(nil).(*TaskPool); ok {
		pool.Close()
	}
}
