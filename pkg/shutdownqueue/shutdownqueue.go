// Package shutdownqueue is a process-wide LIFO queue of named cleanup tasks.
//
// Register tasks anywhere with Add and drain them once at the end of main:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
//	defer cancel()
//	defer shutdownqueue.Shutdown(ctx)
//
// Tasks run once, in reverse order of registration, and each run is logged
// with its name and duration. Panics are recovered. Shutdown is idempotent
// and returns every task error joined with errors.Join.
package shutdownqueue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Task is a shutdown function. It should honor ctx and return an error
// if it can't finish (or ctx is canceled).
type Task func(ctx context.Context) error

type namedTask struct {
	name string
	run  Task
}

type queue struct {
	mu     sync.Mutex
	tasks  []namedTask
	closed bool
}

var q = &queue{tasks: make([]namedTask, 0, 8)}

// Add registers t under name. A nil task, or any Add after shutdown has
// started, is ignored.
func Add(name string, t Task) {
	if t == nil {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		slog.Warn("shutdown task registered too late", "task", name)
		return
	}

	q.tasks = append(q.tasks, namedTask{name: name, run: t})
}

// AddCloser registers c.Close under name.
func AddCloser(name string, c io.Closer) {
	if c == nil {
		return
	}

	Add(name, func(context.Context) error {
		return c.Close()
	})
}

// Shutdown drains all registered tasks in LIFO order. Repeated calls are
// no-ops. If ctx ends mid-drain, the remaining tasks are skipped and the
// context error is joined into the result.
func Shutdown(ctx context.Context) error {
	q.mu.Lock()

	if q.closed && len(q.tasks) == 0 {
		q.mu.Unlock()

		return nil
	}

	q.closed = true
	tasks := q.tasks
	q.tasks = nil

	q.mu.Unlock()

	var errs []error

	for i := len(tasks) - 1; i >= 0; i-- {
		select {
		case <-ctx.Done():
			skipped := make([]string, 0, i+1)
			for j := i; j >= 0; j-- {
				skipped = append(skipped, tasks[j].name)
			}

			slog.Error("shutdown interrupted", "skipped", skipped, "error", ctx.Err())
			errs = append(errs, fmt.Errorf("shutdown canceled: %w", ctx.Err()))

			return errors.Join(errs...)
		default:
		}

		err := runTask(ctx, tasks[i])
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func runTask(ctx context.Context, t namedTask) (err error) {
	start := time.Now()

	defer func() {
		r := recover()
		if r != nil {
			err = fmt.Errorf("panic in shutdown task %q: %v", t.name, r)
		}

		log := slog.With("task", t.name, "duration", time.Since(start))
		if err != nil {
			log.Error("shutdown task failed", "error", err)
			return
		}

		log.Info("shutdown task done")
	}()

	err = t.run(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", t.name, err)
	}

	return nil
}
