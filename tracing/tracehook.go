package tracing

import (
	"fmt"
	"reflect"

	"github.com/sarchlab/remoteport/hooking"
	"github.com/sarchlab/remoteport/remoteport"
)

// CollectTrace let the tracer to collect trace from a domain
func CollectTrace(domain hooking.NamedHookable, tracer Tracer) {
	for _, hook := range domain.Hooks() {
		hook, ok := hook.(*traceHook)
		if ok && hook.t == tracer {
			panic(fmt.Sprintf(
				"domain %s already has tracer %s",
				domain.Name(), reflect.TypeOf(tracer)))
		}
	}

	domain.AcceptHook(&traceHook{t: tracer})
}

// A traceHook is a hook that traces transactions and served requests.
type traceHook struct {
	t Tracer
}

// Func calls the tracer interfaces when the hook is triggered
func (h *traceHook) Func(ctx hooking.HookCtx) {
	tx, ok := ctx.Item.(*remoteport.Transaction)
	if !ok {
		return
	}

	switch ctx.Pos {
	case remoteport.HookPosTransactionStart:
		h.t.StartTask(taskOf(KindTransaction, tx))
	case remoteport.HookPosTransactionEnd:
		h.t.EndTask(taskOf(KindTransaction, tx))
	case remoteport.HookPosRequestStart:
		h.t.StartTask(taskOf(KindRequest, tx))
	case remoteport.HookPosRequestEnd:
		h.t.EndTask(taskOf(KindRequest, tx))
	}
}

func taskOf(kind string, tx *remoteport.Transaction) Task {
	return Task{
		ID:     tx.ID,
		Kind:   kind,
		What:   tx.Command.String(),
		Where:  tx.Channel,
		Detail: tx,
	}
}
