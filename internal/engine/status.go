package engine

import (
	"github.com/msto63/wiener/internal/script"
)

// Status is the tri-state exit status of an instance
type Status uint8

const (
	StatusUnset Status = iota
	StatusSuccess
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFail:
		return "fail"
	default:
		return "unset"
	}
}

func (s Status) invert() Status {
	switch s {
	case StatusSuccess:
		return StatusFail
	case StatusFail:
		return StatusSuccess
	default:
		return s
	}
}

// Result is the outcome of a finished interpreter
type Result struct {
	Exit      Status
	Cancelled bool
	Causes    []script.Term
}

// Cause predicates recorded on failure
func CauseUnable(op string) script.Term           { return script.Compound("unable", script.Atom(op)) }
func CauseTimeout(name string) script.Term        { return script.Compound("timeout", script.Atom(name)) }
func CauseRemoteError(op string) script.Term      { return script.Compound("remoteError", script.Atom(op)) }
func CauseUnachievable(g script.Term) script.Term { return script.Compound("unachievable", g) }
func CauseUndefined(name string) script.Term      { return script.Compound("undefined", script.Atom(name)) }

// CauseLockedBy describes a lock held by another goal
func CauseLockedBy(lockName, owner string) script.Term {
	return script.Compound("lockedBy", script.Atom(lockName), script.Atom(owner))
}

// UnableOperation extracts op from unable(op)
func UnableOperation(cause script.Term) (string, bool) {
	if cause.Functor() != "unable" || cause.Arity() != 1 {
		return "", false
	}
	arg := cause.Arg(0)
	switch arg.Kind {
	case script.KindAtom:
		return arg.Name, true
	case script.KindString:
		return arg.Str, true
	}
	return "", false
}
