package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/msto63/wiener/internal/script"
)

// OperationFunc implements one operation of a provider
type OperationFunc func(ctx context.Context, args []script.Term) (script.Term, error)

// Operations is a set of named operation implementations. It backs both the
// in-process invoker and the gRPC service.
type Operations struct {
	mu  sync.RWMutex
	ops map[string]OperationFunc
}

// NewOperations creates an empty operation set
func NewOperations() *Operations {
	return &Operations{ops: make(map[string]OperationFunc)}
}

// Handle registers fn under name
func (o *Operations) Handle(name string, fn OperationFunc) *Operations {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops[name] = fn
	return o
}

// Names returns the registered operation names in order
func (o *Operations) Names() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	names := make([]string, 0, len(o.ops))
	for n := range o.ops {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Call runs the named operation
func (o *Operations) Call(ctx context.Context, name string, args []script.Term) (script.Term, error) {
	o.mu.RLock()
	fn, ok := o.ops[name]
	o.mu.RUnlock()
	if !ok {
		return script.Term{}, fmt.Errorf("unknown operation %s: %w", name, ErrReferenceUnavailable)
	}
	return fn(ctx, args)
}

// LocalInvoker calls operations in process
type LocalInvoker struct {
	ops    *Operations
	mu     sync.Mutex
	closed bool
}

// NewLocalInvoker wraps ops
func NewLocalInvoker(ops *Operations) *LocalInvoker {
	return &LocalInvoker{ops: ops}
}

// Invoke runs the operation unless the invoker was closed
func (l *LocalInvoker) Invoke(ctx context.Context, operation string, args []script.Term) (script.Term, error) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return script.Term{}, ErrDisconnected
	}
	if err := ctx.Err(); err != nil {
		return script.Term{}, err
	}
	return l.ops.Call(ctx, operation, args)
}

// Close makes further invocations fail as disconnected
func (l *LocalInvoker) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// EchoOperations returns the operations served by the demo provider:
// echo returns its argument, say and move succeed with done.
func EchoOperations() *Operations {
	done := func(ctx context.Context, args []script.Term) (script.Term, error) {
		return script.Atom("done"), nil
	}
	return NewOperations().
		Handle("echo", func(ctx context.Context, args []script.Term) (script.Term, error) {
			if len(args) == 0 {
				return script.Atom("none"), nil
			}
			return args[0], nil
		}).
		Handle("say", done).
		Handle("move", done)
}
