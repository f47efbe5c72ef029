package remoteport

import "sync"

// An ExecutionContext is the token a host holds while it runs simulation
// code. Blocking operations leave it while they wait for the peer and enter
// it again before returning. The inbound dispatcher enters it before calling
// device handlers and leaves it afterwards.
//
// Callers of blocking operations must hold the context.
type ExecutionContext interface {
	Enter()
	Leave()
}

// NopExecutionContext is used by hosts that do not serialize execution.
type NopExecutionContext struct{}

// Enter does nothing.
func (NopExecutionContext) Enter() {}

// Leave does nothing.
func (NopExecutionContext) Leave() {}

// BigLock is an ExecutionContext backed by a single mutex shared by
// everything that runs host code.
type BigLock struct {
	mu sync.Mutex
}

// NewBigLock creates an unlocked BigLock.
func NewBigLock() *BigLock {
	return &BigLock{}
}

// Enter acquires the lock.
func (l *BigLock) Enter() {
	l.mu.Lock()
}

// Leave releases the lock.
func (l *BigLock) Leave() {
	l.mu.Unlock()
}
