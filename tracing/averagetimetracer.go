package tracing

import (
	"sync"

	"github.com/sarchlab/remoteport/clock"
)

// AverageTimeTracer can collect the average time of executing a certain type
// of task. If the execution of two tasks overlaps, this tracer will simply
// add the two task processing time together.
type AverageTimeTracer struct {
	timeTeller    clock.TimeTeller
	filter        TaskFilter
	lock          sync.Mutex
	averageTime   float64
	maxTime       clock.VTime
	inflightTasks map[string]Task
	taskCount     uint64
}

// NewAverageTimeTracer creates a new AverageTimeTracer
func NewAverageTimeTracer(
	timeTeller clock.TimeTeller,
	filter TaskFilter,
) *AverageTimeTracer {
	if filter == nil {
		filter = AllTasks
	}

	return &AverageTimeTracer{
		timeTeller:    timeTeller,
		filter:        filter,
		inflightTasks: make(map[string]Task),
	}
}

// AverageTime returns the average duration of the finished tasks.
func (t *AverageTimeTracer) AverageTime() clock.VTime {
	t.lock.Lock()
	defer t.lock.Unlock()

	return clock.VTime(t.averageTime)
}

// MaxTime returns the longest duration seen so far.
func (t *AverageTimeTracer) MaxTime() clock.VTime {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.maxTime
}

// TotalCount returns the total number of tasks.
func (t *AverageTimeTracer) TotalCount() uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.taskCount
}

// StartTask records the task start time
func (t *AverageTimeTracer) StartTask(task Task) {
	task.StartTime = t.timeTeller.Now()

	if !t.filter(task) {
		return
	}

	t.lock.Lock()
	t.inflightTasks[task.ID] = task
	t.lock.Unlock()
}

// EndTask records the end of the task
func (t *AverageTimeTracer) EndTask(task Task) {
	now := t.timeTeller.Now()

	t.lock.Lock()
	defer t.lock.Unlock()

	original, ok := t.inflightTasks[task.ID]
	if !ok {
		return
	}

	taskTime := now - original.StartTime
	t.averageTime = (t.averageTime*float64(t.taskCount) + float64(taskTime)) /
		float64(t.taskCount+1)

	if taskTime > t.maxTime {
		t.maxTime = taskTime
	}

	delete(t.inflightTasks, task.ID)
	t.taskCount++
}
