package engine

import (
	"context"
	"time"

	"github.com/msto63/wiener/internal/script"
)

// getNextAction advances the stack until a primitive is ready, the stack is
// empty, the interpreter must yield on lock contention, or the step cap for
// this cycle is reached. The returned primitive has been popped.
func (it *Interpreter) getNextAction(ctx context.Context) *Instance {
	for steps := 0; steps < it.maxSteps; steps++ {
		top := it.pop()
		if top == nil {
			return nil
		}
		if top.timedOut(time.Now()) {
			it.logger.Warn("Script timed out", "script", top.Name(), "timeout", top.Node.Timeout)
			it.addCause(CauseTimeout(top.Name()))
			top.Exit = StatusFail
			it.complete(top)
			continue
		}
		if top.isPrimitive() {
			return top
		}
		if top.done() {
			it.complete(top)
			continue
		}

		it.push(top)
		if yield := it.step(ctx, top); yield {
			return nil
		}
	}
	return nil
}

// step processes the token at top.pc. top is already back on the stack.
// It reports whether the interpreter must yield.
func (it *Interpreter) step(ctx context.Context, top *Instance) bool {
	tok := top.body[top.pc]
	switch tok.Kind {
	case script.TokInvoke:
		return it.invoke(ctx, top, tok.Call, top.pc+1)

	case script.TokIf:
		return it.openCondition(top, script.TokThen)

	case script.TokElseIf:
		if top.branchEval {
			top.branchEval = false
			return it.openCondition(top, script.TokThen)
		}
		// the previous branch ran to completion
		it.skipTo(top, script.TokEndIf)

	case script.TokThen:
		cond := top.result
		top.result = StatusUnset
		if cond == StatusSuccess {
			top.pc++
			break
		}
		next := scan(top.body, top.pc+1, script.TokElse, script.TokElseIf, script.TokEndIf)
		switch {
		case next < 0:
			it.structural(top, "then without endif")
		case top.body[next].Kind == script.TokElse:
			top.pc = next + 1
		case top.body[next].Kind == script.TokElseIf:
			top.pc = next
			top.branchEval = true
		default:
			top.pc = next + 1
		}

	case script.TokElse:
		it.skipTo(top, script.TokEndIf)

	case script.TokEndIf:
		top.pc++

	case script.TokWhile:
		top.jumps = append(top.jumps, top.pc)
		return it.openCondition(top, script.TokDo)

	case script.TokDo:
		cond := top.result
		top.result = StatusUnset
		if cond == StatusSuccess {
			top.pc++
			break
		}
		top.popJump()
		it.skipTo(top, script.TokEndWhile)

	case script.TokEndWhile:
		j, ok := top.popJump()
		if !ok {
			it.structural(top, "endwhile without while")
			break
		}
		top.pc = j

	case script.TokNot:
		return it.openFrame(top, frameNot, script.TokEndNot)

	case script.TokEndNot:
		st := top.result.invert()
		top.result = StatusUnset
		top.pc++
		it.statementDone(top, st)

	case script.TokReturn:
		return it.openFrame(top, frameReturn, script.TokEndReturn)

	case script.TokEndReturn:
		st := top.result
		top.result = StatusUnset
		if st == StatusUnset {
			st = StatusSuccess
		}
		it.returnWith(top, st)

	case script.TokChoose:
		return it.choose(ctx, top)

	case script.TokAchieve:
		return it.achieve(ctx, top, tok.Call)

	default:
		it.structural(top, "unexpected "+tok.String())
	}
	return false
}

// openCondition pushes a condition frame for the tokens between top.pc and
// the matching closer (then or do) and parks top on the closer.
func (it *Interpreter) openCondition(top *Instance, closer script.TokenKind) bool {
	end := scan(top.body, top.pc+1, closer)
	if end < 0 {
		it.structural(top, "condition without "+script.Token{Kind: closer}.String())
		return false
	}
	frame := newSyntheticFrame(frameCondition, top, top.body[top.pc+1:end])
	top.pc = end
	it.push(frame)
	return false
}

// openFrame pushes a not or return frame covering the tokens up to the
// matching closer and parks top on the closer.
func (it *Interpreter) openFrame(top *Instance, kind frameKind, closer script.TokenKind) bool {
	end := scan(top.body, top.pc+1, closer)
	if end < 0 {
		it.structural(top, kind.String()+" without "+script.Token{Kind: closer}.String())
		return false
	}
	frame := newSyntheticFrame(kind, top, top.body[top.pc+1:end])
	top.pc = end
	it.push(frame)
	return false
}

// returnWith ends the enclosing script with st. Synthetic frames between the
// return and its script are ended too.
func (it *Interpreter) returnWith(top *Instance, st Status) {
	for in := top; in != nil; in = in.caller {
		in.abort(st)
		if in.kind == frameScript {
			return
		}
	}
}

func (it *Interpreter) skipTo(top *Instance, closer script.TokenKind) {
	end := scan(top.body, top.pc+1, closer)
	if end < 0 {
		it.structural(top, "missing "+script.Token{Kind: closer}.String())
		return
	}
	top.pc = end + 1
}

// structural logs a malformed body and skips the offending token
func (it *Interpreter) structural(top *Instance, msg string) {
	it.logger.Error("Malformed script body", "script", top.Name(), "pc", top.pc, "problem", msg)
	top.pc++
}

func (in *Instance) popJump() (int, bool) {
	n := len(in.jumps)
	if n == 0 {
		return 0, false
	}
	j := in.jumps[n-1]
	in.jumps = in.jumps[:n-1]
	return j, true
}

func opens(k script.TokenKind) bool {
	switch k {
	case script.TokIf, script.TokWhile, script.TokNot, script.TokChoose, script.TokReturn:
		return true
	}
	return false
}

func closes(k script.TokenKind) bool {
	switch k {
	case script.TokEndIf, script.TokEndWhile, script.TokEndNot, script.TokEndChoose, script.TokEndReturn:
		return true
	}
	return false
}

// scan returns the index of the first token at nesting depth zero, starting
// at from, whose kind is one of targets. It returns -1 when the enclosing
// block closes first or the body ends.
func scan(body []script.Token, from int, targets ...script.TokenKind) int {
	depth := 0
	for i := from; i < len(body); i++ {
		k := body[i].Kind
		if depth == 0 {
			for _, t := range targets {
				if k == t {
					return i
				}
			}
		}
		switch {
		case opens(k):
			depth++
		case closes(k):
			if depth == 0 {
				return -1
			}
			depth--
		}
	}
	return -1
}

// statementDone records the status of a finished statement in top. A failed
// statement aborts the rest of the frame.
func (it *Interpreter) statementDone(top *Instance, st Status) {
	top.result = st
	if st == StatusFail {
		top.abort(StatusFail)
	}
}

// choose invokes the alternative with the highest affect*benefit-cost.
// Only a strictly greater utility replaces the current best.
func (it *Interpreter) choose(ctx context.Context, top *Instance) bool {
	end := scan(top.body, top.pc+1, script.TokEndChoose)
	if end < 0 {
		it.structural(top, "choose without endchoose")
		return false
	}

	var (
		best     script.Term
		bestU    float64
		haveBest bool
	)
	for _, tok := range top.body[top.pc+1 : end] {
		if tok.Kind != script.TokInvoke {
			it.logger.Warn("Ignoring non-invocation in choose", "script", top.Name(), "token", tok.String())
			continue
		}
		node, ok := it.scripts.Lookup(tok.Call.Functor())
		if !ok {
			continue
		}
		affect := 1.0
		if it.host != nil {
			affect = it.host.Affect(node.Name)
		}
		u := affect*node.Benefit - node.Cost
		if !haveBest || u > bestU {
			best, bestU, haveBest = tok.Call, u, true
		}
	}
	if !haveBest {
		top.pc = end + 1
		it.statementDone(top, StatusFail)
		return false
	}
	it.logger.Debug("Chose alternative", "script", top.Name(), "choice", best.String(), "utility", bestU)
	return it.invoke(ctx, top, best, end+1)
}

// achieve invokes the first template whose postcondition unifies with goal
func (it *Interpreter) achieve(ctx context.Context, top *Instance, goal script.Term) bool {
	g := top.Bindings.Substitute(goal)
	matches := it.scripts.ByPostcondition(g)
	if len(matches) == 0 {
		it.logger.Info("No script achieves goal", "goal", g.String())
		it.addCause(CauseUnachievable(g))
		top.pc++
		it.statementDone(top, StatusFail)
		return false
	}
	m := matches[0]
	b, outputs := it.bindMatch(top, m)
	return it.activate(ctx, top, m.Node, b.Substitute(m.Node.InvocationTerm()), b, outputs, top.pc+1)
}
