// Package tasks holds the ordered action-task queue driven once per tick.
package tasks

import (
	"context"

	"squadfire/battlecore/internal/action"
	"squadfire/battlecore/internal/unit"
)

// Task is a queued unit of work wrapping one pending action.
type Task interface {
	// Init runs when the task becomes the front of the queue.
	Init(ctx context.Context)
	// Step advances the task by one tick and reports completion.
	Step(ctx context.Context) bool
	// Cancel aborts the task at the next step.
	Cancel()
	// Action exposes the wrapped pending action.
	Action() *action.Pending
}

// Queue is a FIFO of tasks. A nil entry is the end-of-turn sentinel. Completed tasks move to
// a deferred-deletion list until CollectGarbage runs.
type Queue struct {
	items   []Task
	deleted []Task
}

// Len returns the number of queued entries, sentinels included.
func (q *Queue) Len() int { return len(q.items) }

// Empty reports whether nothing is queued.
func (q *Queue) Empty() bool { return len(q.items) == 0 }

// Front returns the executing entry; ok is false when the queue is empty.
func (q *Queue) Front() (Task, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	return q.items[0], true
}

// FrontIsSentinel reports whether the end-of-turn marker is at the front.
func (q *Queue) FrontIsSentinel() bool {
	return len(q.items) > 0 && q.items[0] == nil
}

// PushFront preempts the executing task.
func (q *Queue) PushFront(t Task) {
	q.items = append([]Task{t}, q.items...)
}

// PushNext inserts after the executing task; on an empty queue it becomes the front.
func (q *Queue) PushNext(t Task) {
	if len(q.items) == 0 {
		q.items = append(q.items, t)
		return
	}
	q.items = append(q.items, nil)
	copy(q.items[2:], q.items[1:])
	q.items[1] = t
}

// PushBack appends.
func (q *Queue) PushBack(t Task) {
	q.items = append(q.items, t)
}

// PopFront removes the front entry and defers its deletion.
func (q *Queue) PopFront() Task {
	if len(q.items) == 0 {
		return nil
	}
	t := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if t != nil {
		q.deleted = append(q.deleted, t)
	}
	return t
}

// PopSentinels drops consecutive sentinels at the front and returns how many were removed.
func (q *Queue) PopSentinels() int {
	n := 0
	for len(q.items) > 0 && q.items[0] == nil {
		q.items = q.items[1:]
		n++
	}
	return n
}

// HasPendingFor reports whether any queued task belongs to the actor.
func (q *Queue) HasPendingFor(actor unit.Handle) bool {
	for _, t := range q.items {
		if t != nil && t.Action().Actor == actor {
			return true
		}
	}
	return false
}

// Deleted returns the number of tasks awaiting deletion.
func (q *Queue) Deleted() int { return len(q.deleted) }

// CollectGarbage releases tasks that completed since the last collection.
func (q *Queue) CollectGarbage() {
	for i := range q.deleted {
		q.deleted[i] = nil
	}
	q.deleted = q.deleted[:0]
}

// Kinds returns the action kind of each queued entry; sentinels read as KindNone.
func (q *Queue) Kinds() []action.Kind {
	out := make([]action.Kind, len(q.items))
	for i, t := range q.items {
		if t != nil {
			out[i] = t.Action().Kind
		}
	}
	return out
}
