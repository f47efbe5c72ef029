// Package tracing turns remote port transactions into tasks and hands them
// to tracers.
package tracing

import (
	"github.com/sarchlab/remoteport/clock"
)

// Task kinds produced by the trace hook.
const (
	KindTransaction = "transaction"
	KindRequest     = "request"
)

// A Task is one transaction or one served request.
type Task struct {
	ID        string      `json:"id"`
	ParentID  string      `json:"parent_id"`
	Kind      string      `json:"kind"`
	What      string      `json:"what"`
	Where     string      `json:"where"`
	StartTime clock.VTime `json:"start_time"`
	EndTime   clock.VTime `json:"end_time"`
	Detail    any         `json:"-"`
}

// TaskFilter is a function that can filter interesting tasks. If this function
// returns true, the task is considered useful.
type TaskFilter func(t Task) bool

// AllTasks accepts every task.
func AllTasks(Task) bool { return true }

// KindIs returns a filter that accepts the tasks of the given kind.
func KindIs(kind string) TaskFilter {
	return func(t Task) bool { return t.Kind == kind }
}
