package protocol

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-charws/logger"
)

// TaskFunc represents a function that performs a task within a goroutine managed by the TaskManager.
// It should return true to continue running the task, or false to stop the goroutine.
type TaskFunc func() bool

// TaskManager manages the lifecycle of goroutines (tasks) of a client.
// It provides a structured way to start, stop, and wait for goroutines, ensuring proper
// cancellation and resource cleanup.
//
// The TaskManager uses a context.Context to manage the lifecycle of the goroutines. When the
// context is canceled, all running goroutines are signaled to stop. Wait blocks until all of
// them terminated, after which the manager can be reused.
//
// Example Usage:
//
//	taskMgr := protocol.NewTaskManager(ctx, logger)
//
//	taskMgr.Start("supervisor", func() bool {
//	    // ... task logic ...
//	    return true // Return true to continue running, false to stop
//	})
//
//	taskMgr.Stop()
//	taskMgr.Wait()
type TaskManager struct {
	pctx      context.Context
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    logger.Logger
	count     atomic.Int32
	intervals *xsync.MapOf[string, *intervalTask]
	mu        sync.RWMutex // protect ctx and cancel
	taskMu    sync.RWMutex // protect task creation during Wait()
}

type intervalTask struct {
	cancel context.CancelFunc
}

// NewTaskManager creates a new TaskManager with the given context as the parent context and logger.
func NewTaskManager(ctx context.Context, l logger.Logger) *TaskManager {
	mgr := &TaskManager{
		pctx:      ctx,
		logger:    l,
		intervals: xsync.NewMapOf[string, *intervalTask](),
	}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

// Context returns the context of the running tasks. It is cancelled by Stop.
func (mgr *TaskManager) Context() context.Context {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	return mgr.ctx
}

// Start starts a new goroutine with the given name and task function.
//
// The taskFunc should return true to continue running, or false to stop the goroutine.
func (mgr *TaskManager) Start(name string, taskFunc TaskFunc) error {
	mgr.logger.Debug("Start task", "name", name)

	starter, err := mgr.newTaskStarter(name)
	if err != nil {
		return err
	}

	starter.startTask(func() {
		mgr.runTaskLoop(name, taskFunc)
	})

	return starter.waitForStart()
}

// StartInterval starts a new goroutine that executes the given task function at the specified interval.
// If runNow is true, the task function is executed immediately before starting the interval.
//
// Only one interval task with a given name can run at a time, use StopInterval to replace it.
func (mgr *TaskManager) StartInterval(name string, taskFunc TaskFunc, interval time.Duration, runNow bool) error {
	mgr.logger.Debug("StartInterval task", "name", name, "interval", interval, "runNow", runNow)

	if interval <= 0 {
		return fmt.Errorf("invalid interval: %v", interval)
	}

	ctx, cancel := context.WithCancel(mgr.Context())
	task := &intervalTask{cancel: cancel}

	if _, loaded := mgr.intervals.LoadOrStore(name, task); loaded {
		cancel()
		return fmt.Errorf("interval task %s already exists", name)
	}

	// removes this task only, a replacement with the same name is kept
	cleanup := func() {
		cancel()
		mgr.intervals.Compute(name, func(old *intervalTask, loaded bool) (*intervalTask, bool) {
			return old, !loaded || old == task
		})
	}

	if runNow {
		if !mgr.callWithRecoverBool(name, taskFunc) {
			cleanup()
			mgr.logger.Debug(fmt.Sprintf("%s interval task terminated by runNow", name))
			return nil
		}
	}

	starter, err := mgr.newTaskStarter(name)
	if err != nil {
		cleanup()
		return err
	}

	starter.startTask(func() {
		defer cleanup()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// a stop may race with a pending tick
				if ctx.Err() != nil {
					return
				}
				if !mgr.callWithRecoverBool(name, taskFunc) {
					return
				}
			}
		}
	})

	if err := starter.waitForStart(); err != nil {
		cleanup()
		return err
	}

	return nil
}

// StopInterval stops the interval task with the given name.
//
// It returns false if no such task is running.
func (mgr *TaskManager) StopInterval(name string) bool {
	task, ok := mgr.intervals.LoadAndDelete(name)
	if !ok {
		return false
	}
	task.cancel()

	return true
}

// HasInterval returns true if an interval task with the given name is running.
func (mgr *TaskManager) HasInterval(name string) bool {
	_, ok := mgr.intervals.Load(name)
	return ok
}

// callWithRecoverBool calls a function that returns bool with panic protection
func (mgr *TaskManager) callWithRecoverBool(name string, fn func() bool) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
			ok = false
		}
	}()

	return fn()
}

// Stop signals all running goroutines.
func (mgr *TaskManager) Stop() {
	mgr.intervals.Range(func(name string, task *intervalTask) bool {
		task.cancel()
		mgr.intervals.Delete(name)

		return true
	})

	mgr.mu.Lock()
	if mgr.cancel != nil {
		mgr.cancel()
	}
	mgr.mu.Unlock()
}

// Wait waits for all goroutines to terminate.
func (mgr *TaskManager) Wait() {
	mgr.taskMu.Lock()
	defer mgr.taskMu.Unlock()

	mgr.wg.Wait()

	// recreate context with lock
	mgr.mu.Lock()
	mgr.ctx, mgr.cancel = context.WithCancel(mgr.pctx)
	mgr.mu.Unlock()
}

// TaskCount returns the number of currently running goroutines.
func (mgr *TaskManager) TaskCount() int {
	return int(mgr.count.Load())
}

// taskStarter encapsulates common startup logic
type taskStarter struct {
	mgr     *TaskManager
	name    string
	started chan struct{}
}

func (mgr *TaskManager) newTaskStarter(name string) (*taskStarter, error) {
	select {
	case <-mgr.Context().Done():
		return nil, fmt.Errorf("task manager already stopped")
	default:
	}

	return &taskStarter{
		mgr:     mgr,
		name:    name,
		started: make(chan struct{}),
	}, nil
}

// startTask runs the common startup sequence for all tasks
func (s *taskStarter) startTask(taskBody func()) {
	s.mgr.taskMu.RLock()
	defer s.mgr.taskMu.RUnlock()

	s.mgr.wg.Add(1)
	s.mgr.count.Add(1)

	go func() {
		defer s.mgr.wg.Done()
		defer func() {
			s.mgr.count.Add(-1)
			s.mgr.logger.Debug(fmt.Sprintf("%s task terminated", s.name), "task_count", s.mgr.TaskCount())
		}()

		close(s.started)
		taskBody()
	}()
}

// waitForStart waits for the task goroutine to be scheduled
func (s *taskStarter) waitForStart() error {
	select {
	case <-s.started:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for %s to start", s.name)
	}
}

// runTaskLoop runs a task function in a loop with context cancellation
func (mgr *TaskManager) runTaskLoop(name string, taskFunc TaskFunc) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task loop", "name", name, "panic", r)
		}
	}()

	for {
		select {
		case <-mgr.Context().Done():
			return
		default:
			if !taskFunc() {
				return
			}
		}
	}
}
