package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/msto63/wiener/internal/script"
)

var errNoHandler = errors.New("no handler for category")

// execute runs a popped primitive and completes it
func (it *Interpreter) execute(ctx context.Context, in *Instance) {
	node := in.Node
	op := node.Operation

	var (
		val script.Term
		err error
		ok  = true
	)
	if script.IsBuiltin(op) && node.Category() == script.CategoryMisc {
		ok, val, err = it.builtin(ctx, in, op)
	} else {
		val, err = it.dispatch(ctx, in)
	}

	switch {
	case err != nil:
		cause := causeFor(op, err)
		it.logger.Warn("Primitive failed", "operation", op, "cause", cause.String(), "error", err)
		it.addCause(cause)
		in.Exit = StatusFail
	case !ok:
		in.Exit = StatusFail
	default:
		in.Exit = StatusSuccess
		if rr, has := node.ReturnRole(); has && !val.IsZero() {
			b, unified := script.Unify(script.Var(rr.Name), val, in.Bindings)
			if !unified {
				it.logger.Debug("Return value does not match bound role", "operation", op, "value", val.String())
				in.Exit = StatusFail
			} else {
				for k, v := range b {
					in.Bindings[k] = v
				}
			}
		}
	}
	it.complete(in)
}

func (it *Interpreter) dispatch(ctx context.Context, in *Instance) (script.Term, error) {
	node := in.Node
	h := it.handlers[node.Category()]
	if h == nil {
		return script.Term{}, fmt.Errorf("%w %s: %w", errNoHandler, node.Category(), ErrReferenceUnavailable)
	}
	args := make([]script.Term, len(node.Roles))
	for i, r := range node.Roles {
		args[i] = in.Bindings.Substitute(script.Var(r.Name))
	}
	return h.Execute(ctx, Request{
		Goal:      it.id,
		Node:      node,
		Operation: node.Operation,
		Args:      args,
		Timeout:   node.Timeout,
	})
}

func causeFor(op string, err error) script.Term {
	switch {
	case errors.Is(err, ErrReferenceUnavailable):
		return CauseUnable(op)
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return CauseTimeout(op)
	default:
		return CauseRemoteError(op)
	}
}

// callerBindings is the binding map a builtin reads and extends. Builtins
// see the variables of the statement that invoked them.
func (in *Instance) callerBindings() script.Bindings {
	if in.caller != nil {
		return in.caller.Bindings
	}
	return in.Bindings
}

// argument returns the i-th argument as written by the caller, resolved
// against the caller's bindings, falling back to the role binding
func (in *Instance) argument(i int) script.Term {
	if i < in.call.Arity() {
		return in.callerBindings().Substitute(in.call.Arg(i))
	}
	if i < len(in.Node.Roles) {
		return in.Bindings.Substitute(script.Var(in.Node.Roles[i].Name))
	}
	return script.Term{}
}

// builtin executes a misc primitive inside the engine
func (it *Interpreter) builtin(ctx context.Context, in *Instance, op string) (bool, script.Term, error) {
	switch op {
	case script.BuiltinSucceed:
		return true, script.Term{}, nil

	case script.BuiltinFail:
		return false, script.Term{}, nil

	case script.BuiltinHolds:
		if it.facts == nil {
			return false, script.Term{}, nil
		}
		pattern := in.argument(0)
		results := it.facts.Query(pattern)
		if len(results) == 0 {
			return false, script.Term{}, nil
		}
		cb := in.callerBindings()
		for k, v := range results[0] {
			if _, bound := cb[k]; !bound {
				cb[k] = v
			}
		}
		return true, script.Term{}, nil

	case script.BuiltinCheck:
		return it.check(in)

	case script.BuiltinAssert, script.BuiltinRetract:
		fact := in.argument(0)
		if op == script.BuiltinAssert && !fact.Ground() {
			it.logger.Warn("Cannot assert non-ground fact", "fact", fact.String())
			return false, script.Term{}, nil
		}
		if op == script.BuiltinRetract {
			fact = script.Compound("not", fact)
		}
		if it.host != nil {
			it.host.Emit(it.id, []script.Term{fact})
		}
		return true, script.Term{}, nil

	case script.BuiltinPost:
		goal := in.argument(0)
		if it.host == nil || !goal.Ground() {
			return false, script.Term{}, nil
		}
		id, err := it.host.Post(it.id, goal)
		if err != nil {
			it.logger.Warn("Posting sub-goal failed", "goal", goal.String(), "error", err)
			return false, script.Term{}, nil
		}
		return true, script.Number(float64(id)), nil
	}
	return false, script.Term{}, fmt.Errorf("unknown builtin %s: %w", op, ErrReferenceUnavailable)
}

// check evaluates a boolean expr-lang expression. Bound script variables are
// visible by name, e.g. check("battery > 20").
func (it *Interpreter) check(in *Instance) (bool, script.Term, error) {
	src := in.argument(0)
	var code string
	switch src.Kind {
	case script.KindString:
		code = src.Str
	case script.KindAtom:
		code = src.Name
	default:
		it.logger.Warn("check needs a string expression", "arg", src.String())
		return false, script.Term{}, nil
	}

	env := make(map[string]interface{})
	cb := in.callerBindings()
	for name := range cb {
		if v := cb.Substitute(script.Var(name)); v.Ground() {
			env[name] = script.ToValue(v)
		}
	}
	program, err := expr.Compile(code, expr.Env(env), expr.AsBool())
	if err != nil {
		it.logger.Warn("Invalid check expression", "expr", code, "error", err)
		return false, script.Term{}, nil
	}
	out, err := expr.Run(program, env)
	if err != nil {
		it.logger.Warn("check evaluation failed", "expr", code, "error", err)
		return false, script.Term{}, nil
	}
	b, _ := out.(bool)
	return b, script.Term{}, nil
}
