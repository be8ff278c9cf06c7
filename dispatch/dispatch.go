/*
Copyright (C) 2026  ferrodb authors

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package dispatch implements the orchestrator's task submission
// model: operators self-declare whether they're IO-bound or CPU-bound
// so the dispatcher can route them to the right worker pool, every
// task carries a cancellation token, and a panic inside a task is
// caught at the task boundary and reported as an Internal error
// rather than taking the process down.
package dispatch

import (
	"context"

	"github.com/jtolds/gls"

	"github.com/ferrodb/ferrodb/internal/ferrodberrs"
)

// OperatorType is an operator's self-declared resource class, used to
// route its tasks to the IO pool or the CPU (Other) pool.
type OperatorType int

const (
	Other OperatorType = iota
	IO
)

// glsMgr carries each worker goroutine's pool identity down through
// gls's goroutine-local stack so a panic caught inside Submit's task
// closure (running on that same goroutine, several frames below
// NewDispatcher's gls.Go) can report which pool it ran on without
// threading the value through every intermediate call.
var glsMgr = gls.NewContextManager()

const glsPoolKey = "dispatch_pool"

func poolName(t OperatorType) string {
	if t == IO {
		return "io"
	}
	return "other"
}

// Operator is a named unit of work from Input to Output. Result
// carries the operator's own error type so callers can type-switch on
// it; the dispatcher itself only ever sees ferrodberrs.Error for
// panics and cancellation.
type Operator[I any, O any] interface {
	Run(ctx context.Context, input I) (O, error)
	Name() string
	Type() OperatorType
}

// TaskResult wraps one task's outcome.
type TaskResult[O any] struct {
	Output O
	Err    error
}

// Dispatcher routes tasks to one of two worker pools sized
// independently: ioWorkers for blocking network/storage calls,
// otherWorkers for CPU-bound work (scoring, quantization, merges).
type Dispatcher struct {
	ioQueue    chan func()
	otherQueue chan func()
}

// NewDispatcher starts ioWorkers goroutines draining the IO queue and
// otherWorkers goroutines draining the CPU queue. queueDepth bounds
// how many pending tasks may queue per pool before Submit blocks.
func NewDispatcher(ioWorkers, otherWorkers, queueDepth int) *Dispatcher {
	if ioWorkers < 1 {
		ioWorkers = 1
	}
	if otherWorkers < 1 {
		otherWorkers = 1
	}
	if queueDepth < 1 {
		queueDepth = 1
	}
	d := &Dispatcher{
		ioQueue:    make(chan func(), queueDepth),
		otherQueue: make(chan func(), queueDepth),
	}
	for i := 0; i < ioWorkers; i++ {
		gls.Go(func() {
			glsMgr.SetValues(gls.Values{glsPoolKey: poolName(IO)}, func() { d.drain(d.ioQueue) })
		})
	}
	for i := 0; i < otherWorkers; i++ {
		gls.Go(func() {
			glsMgr.SetValues(gls.Values{glsPoolKey: poolName(Other)}, func() { d.drain(d.otherQueue) })
		})
	}
	return d
}

func (d *Dispatcher) drain(queue chan func()) {
	for fn := range queue {
		fn()
	}
}

// Submit runs op.Run(ctx, input) on the pool matching op.Type(),
// catching any panic at the task boundary and reporting it as
// ferrodberrs.Internal. The result is delivered on the returned
// channel exactly once. Submit blocks until a worker slot is free or
// ctx is cancelled.
func Submit[I any, O any](ctx context.Context, d *Dispatcher, op Operator[I, O], input I) <-chan TaskResult[O] {
	out := make(chan TaskResult[O], 1)
	task := func() {
		defer func() {
			if r := recover(); r != nil {
				pool := "unknown"
				if v, ok := glsMgr.GetValue(glsPoolKey); ok {
					pool, _ = v.(string)
				}
				out <- TaskResult[O]{Err: ferrodberrs.Wrap(ferrodberrs.Internal, ferrodberrs.Panic(r), "dispatch: task %q panicked on %s pool", op.Name(), pool)}
			}
		}()
		if err := ctx.Err(); err != nil {
			out <- TaskResult[O]{Err: ferrodberrs.New(ferrodberrs.Aborted, "dispatch: task %q cancelled before start: %v", op.Name(), err)}
			return
		}
		result, err := op.Run(ctx, input)
		if err != nil {
			out <- TaskResult[O]{Err: err}
			return
		}
		out <- TaskResult[O]{Output: result}
	}

	queue := d.otherQueue
	if op.Type() == IO {
		queue = d.ioQueue
	}
	select {
	case queue <- task:
	case <-ctx.Done():
		out <- TaskResult[O]{Err: ferrodberrs.New(ferrodberrs.Aborted, "dispatch: task %q submission cancelled: %v", op.Name(), ctx.Err())}
	}
	return out
}
