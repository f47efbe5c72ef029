// Package hooking lets observers attach to sessions and channels without the
// observed code knowing about them.
package hooking

import (
	"sync"
	"sync/atomic"
)

// HookPos names a site where hooks are invoked.
type HookPos struct {
	Name string
}

// HookCtx is the context that holds all the information about the site that a
// hook is triggered.
type HookCtx struct {
	Domain Hookable
	Pos    *HookPos
	Item   interface{}
	Detail interface{}
}

// Hookable defines an object that accept Hooks.
type Hookable interface {
	// AcceptHook registers a hook.
	AcceptHook(hook Hook)

	// NumHooks returns the number of hooks registered.
	NumHooks() int

	// Hooks returns all the hooks registered.
	Hooks() []Hook
}

// NamedHookable is a Hookable that can also report its name. Tracers use the
// name as the location of the tasks they record.
type NamedHookable interface {
	Hookable
	Name() string
}

// Hook is a short piece of program that can be invoked by a hookable object.
type Hook interface {
	// Func determines what to do if hook is invoked.
	Func(ctx HookCtx)
}

// HookFunc lets a function serve as a Hook. HookFuncs cannot be compared, so
// the duplicate check does not apply to them.
type HookFunc func(ctx HookCtx)

// Func calls f.
func (f HookFunc) Func(ctx HookCtx) {
	f(ctx)
}

// A HookableBase can be embedded to implement Hookable. Hooks may be added
// while other goroutines invoke them; an invocation sees either the old or
// the new list.
type HookableBase struct {
	mu    sync.Mutex
	hooks atomic.Pointer[[]Hook]
}

// NumHooks returns the number of hooks registered.
func (h *HookableBase) NumHooks() int {
	return len(h.list())
}

// Hooks returns all the hooks registered.
func (h *HookableBase) Hooks() []Hook {
	list := h.list()
	out := make([]Hook, len(list))
	copy(out, list)

	return out
}

// AcceptHook registers a hook. Registering the same hook twice panics.
func (h *HookableBase) AcceptHook(hook Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()

	old := h.list()
	mustNotHaveDuplicatedHook(old, hook)

	list := make([]Hook, len(old), len(old)+1)
	copy(list, old)
	list = append(list, hook)
	h.hooks.Store(&list)
}

// InvokeHook triggers the registered hooks in registration order.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.list() {
		hook.Func(ctx)
	}
}

func (h *HookableBase) list() []Hook {
	p := h.hooks.Load()
	if p == nil {
		return nil
	}

	return *p
}

func mustNotHaveDuplicatedHook(list []Hook, hook Hook) {
	if _, ok := hook.(HookFunc); ok {
		return
	}

	for _, h := range list {
		if h == hook {
			panic("duplicated hook")
		}
	}
}
