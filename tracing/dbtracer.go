package tracing

import (
	"fmt"
	"sync"

	"github.com/tebeka/atexit"

	"github.com/sarchlab/remoteport/clock"
	"github.com/sarchlab/remoteport/datarecording"
	"github.com/sarchlab/remoteport/remoteport"
)

// TraceTable is the table the DBTracer writes tasks into.
const TraceTable = "trace"

// TaskEntry is the row written for each finished task. Times are in
// nanoseconds of the tracer's clock.
type TaskEntry struct {
	ID        string `json:"id" rp_data:"unique"`
	ParentID  string `json:"parent_id"`
	Kind      string `json:"kind" rp_data:"index"`
	What      string `json:"what" rp_data:"index"`
	Location  string `json:"location" rp_data:"index"`
	StartTime int64  `json:"start_time" rp_data:"index"`
	EndTime   int64  `json:"end_time"`
	Address   string `json:"address"`
	Length    uint32 `json:"length"`
	PeerClock int64  `json:"peer_clock"`
	Error     string `json:"error"`
}

// DBTracer is a tracer that can store tasks into a DataRecorder.
type DBTracer struct {
	timeTeller clock.TimeTeller
	backend    datarecording.DataRecorder
	filter     TaskFilter

	mu           sync.Mutex
	tracingTasks map[string]Task
	numWritten   uint64
}

// NewDBTracer creates a new DBTracer and the trace table in the backend.
func NewDBTracer(
	timeTeller clock.TimeTeller,
	backend datarecording.DataRecorder,
) *DBTracer {
	t := &DBTracer{
		timeTeller:   timeTeller,
		backend:      backend,
		filter:       AllTasks,
		tracingTasks: make(map[string]Task),
	}

	backend.CreateTable(TraceTable, TaskEntry{})

	atexit.Register(t.Terminate)

	return t
}

// SetFilter limits the tasks that are recorded.
func (t *DBTracer) SetFilter(filter TaskFilter) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.filter = filter
}

// StartTask marks the start of a task.
func (t *DBTracer) StartTask(task Task) {
	task.StartTime = t.timeTeller.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.filter(task) {
		return
	}

	t.tracingTasks[task.ID] = task
}

// EndTask writes the task into the backend. Tasks that were never started
// are ignored.
func (t *DBTracer) EndTask(task Task) {
	now := t.timeTeller.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	original, ok := t.tracingTasks[task.ID]
	if !ok {
		return
	}

	delete(t.tracingTasks, task.ID)

	original.EndTime = now
	if task.Detail != nil {
		original.Detail = task.Detail
	}

	t.backend.InsertData(TraceTable, entryOf(original))
	t.numWritten++
}

// NumInflight returns the number of started tasks that have not ended.
func (t *DBTracer) NumInflight() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.tracingTasks)
}

// NumWritten returns the number of tasks written into the backend.
func (t *DBTracer) NumWritten() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.numWritten
}

// Terminate writes the tasks that are still in flight with the current time
// as their end time and flushes the backend.
func (t *DBTracer) Terminate() {
	now := t.timeTeller.Now()

	t.mu.Lock()

	for id, task := range t.tracingTasks {
		task.EndTime = now
		t.backend.InsertData(TraceTable, entryOf(task))
		t.numWritten++

		delete(t.tracingTasks, id)
	}

	t.mu.Unlock()

	t.backend.Flush()
}

func entryOf(task Task) TaskEntry {
	e := TaskEntry{
		ID:        task.ID,
		ParentID:  task.ParentID,
		Kind:      task.Kind,
		What:      task.What,
		Location:  task.Where,
		StartTime: task.StartTime,
		EndTime:   task.EndTime,
	}

	if tx, ok := task.Detail.(*remoteport.Transaction); ok {
		e.Address = fmt.Sprintf("0x%x", tx.Address)
		e.Length = tx.Length
		e.PeerClock = tx.PeerClock

		if tx.Err != nil {
			e.Error = tx.Err.Error()
		}
	}

	return e
}
