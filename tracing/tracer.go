package tracing

// A Tracer can collect task traces. Tracers fill StartTime and EndTime
// themselves.
type Tracer interface {
	StartTask(task Task)
	EndTask(task Task)
}
