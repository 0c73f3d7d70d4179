package engine

import (
	"context"
	"strings"

	"github.com/msto63/wiener/internal/script"
)

const goalVarPrefix = "_g."

// invoke activates the template named by call. nextPC is where the caller
// continues once the invocation has been pushed.
func (it *Interpreter) invoke(ctx context.Context, top *Instance, call script.Term, nextPC int) bool {
	node, ok := it.scripts.Lookup(call.Functor())
	if !ok {
		it.logger.Error("Invocation of unknown script", "script", top.Name(), "call", call.String())
		it.addCause(CauseUndefined(call.Functor()))
		top.pc = nextPC
		it.statementDone(top, StatusFail)
		return false
	}
	b, outputs := it.bindCall(top, node, call)
	return it.activate(ctx, top, node, call, b, outputs, nextPC)
}

// bindCall builds the bindings of a new instance of node. Same-named caller
// bindings are inherited, positional arguments override them, and defaults
// fill the rest. Unbound caller variables passed to return roles become
// outputs copied back when the instance succeeds.
func (it *Interpreter) bindCall(caller *Instance, node *script.Node, call script.Term) (script.Bindings, map[string]string) {
	b := script.Bindings{}
	var outputs map[string]string
	var callerB script.Bindings
	if caller != nil {
		callerB = caller.Bindings
		for _, r := range node.Roles {
			if v, ok := callerB[r.Name]; ok {
				if v = callerB.Substitute(v); !v.IsVar() {
					b[r.Name] = v
				}
			}
		}
	}
	for i, arg := range call.Args {
		if i >= len(node.Roles) {
			break
		}
		role := node.Roles[i]
		v := callerB.Substitute(arg)
		if v.IsVar() {
			delete(b, role.Name)
			if role.Return {
				if outputs == nil {
					outputs = make(map[string]string)
				}
				outputs[role.Name] = v.Name
			}
			continue
		}
		b[role.Name] = v
	}
	applyDefaults(node, b)
	return b, outputs
}

// bindMatch binds the roles of an achieve match. Roles left bound to goal
// variables become outputs for those variables.
func (it *Interpreter) bindMatch(caller *Instance, m script.Match) (script.Bindings, map[string]string) {
	b := script.Bindings{}
	var outputs map[string]string
	for _, r := range m.Node.Roles {
		if v, ok := caller.Bindings[r.Name]; ok {
			if v = caller.Bindings.Substitute(v); !v.IsVar() {
				b[r.Name] = v
			}
		}
	}
	for _, r := range m.Node.Roles {
		v := m.Bindings.Substitute(script.Var(r.Name))
		if !v.IsVar() {
			if v.Ground() {
				b[r.Name] = v
			}
			continue
		}
		if strings.HasPrefix(v.Name, goalVarPrefix) {
			if outputs == nil {
				outputs = make(map[string]string)
			}
			outputs[r.Name] = strings.TrimPrefix(v.Name, goalVarPrefix)
		}
	}
	applyDefaults(m.Node, b)
	return b, outputs
}

func applyDefaults(node *script.Node, b script.Bindings) {
	for _, r := range node.Roles {
		if _, ok := b[r.Name]; !ok && r.Default != nil {
			b[r.Name] = *r.Default
		}
	}
}

// checkPolicy applies the forbidden action and state lists to a prospective
// instance of node. An overrider may grant permission.
func (it *Interpreter) checkPolicy(ctx context.Context, node *script.Node, b script.Bindings) (script.Term, bool) {
	if it.policy == nil {
		return script.Term{}, false
	}
	action := b.Substitute(node.InvocationTerm())
	effects := make([]script.Term, 0, len(node.Effects)+len(node.SuccessEffects))
	for _, e := range node.Postconditions() {
		effects = append(effects, b.Substitute(e))
	}
	cause, forbidden := it.policy.Check(action, effects)
	if !forbidden {
		return script.Term{}, false
	}
	if it.overrider != nil && it.overrider.Permit(ctx, it.id, action, cause) {
		it.logger.Info("Forbidden action permitted by override", "action", action.String(), "cause", cause.String())
		return script.Term{}, false
	}
	return cause, true
}

// activate pushes a new instance of node above top. On lock contention top
// is left unchanged so the same token is retried next cycle.
func (it *Interpreter) activate(ctx context.Context, top *Instance, node *script.Node, call script.Term,
	b script.Bindings, outputs map[string]string, nextPC int) bool {

	if cause, forbidden := it.checkPolicy(ctx, node, b); forbidden {
		it.logger.Warn("Forbidden action", "script", top.Name(), "cause", cause.String())
		it.addCause(cause)
		top.pc = nextPC
		it.statementDone(top, StatusFail)
		return false
	}

	if ok, blocker := it.locks.AcquireAll(it, node.Locks); !ok {
		owner := ""
		if blocker.Owner != nil {
			owner = blocker.Owner.LockOwnerID()
		}
		it.logger.Debug("Lock busy, retrying next cycle", "script", node.Name, "lock", blocker.Lock, "owner", owner)
		return true
	}

	child := newScriptInstance(node, b, top, call)
	child.held = node.Locks
	child.outputs = outputs
	top.pc = nextPC
	it.push(child)
	it.logger.Trace("Activated script", "script", node.Name, "caller", top.Name())
	return false
}

// complete retires a popped instance: releases its locks, emits its
// effects and delivers its status to the caller.
func (it *Interpreter) complete(in *Instance) {
	if in.Exit == StatusUnset {
		in.Exit = StatusSuccess
	}
	if in.kind == frameScript {
		it.locks.ReleaseNames(it, in.held)
		in.held = nil
		it.emitEffects(in)
		if in.Node != nil && it.host != nil {
			it.host.Outcome(in.Name(), in.Exit == StatusSuccess)
		}
	}

	caller := in.caller
	if caller == nil {
		it.logger.Debug("Root script finished", "script", in.Name(), "status", in.Exit.String())
		return
	}
	if in.kind != frameScript {
		caller.result = in.Exit
		return
	}
	if in.Exit == StatusSuccess {
		for role, callerVar := range in.outputs {
			if v := in.Bindings.Substitute(script.Var(role)); !v.IsVar() {
				caller.Bindings[callerVar] = v
			}
		}
	}
	it.statementDone(caller, in.Exit)
}

func (it *Interpreter) emitEffects(in *Instance) {
	if in.Node == nil || it.host == nil {
		return
	}
	effects := in.Node.Effects
	if in.Exit == StatusSuccess {
		effects = append(append([]script.Term(nil), effects...), in.Node.SuccessEffects...)
	}
	var ground []script.Term
	for _, e := range effects {
		g := in.Bindings.Substitute(e)
		if !g.Ground() {
			it.logger.Debug("Dropping non-ground effect", "script", in.Name(), "effect", g.String())
			continue
		}
		ground = append(ground, g)
	}
	if len(ground) > 0 {
		it.host.Emit(it.id, ground)
	}
}
