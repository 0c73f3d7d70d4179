package script

// Names of the misc primitives the engine executes itself
const (
	BuiltinHolds   = "holds"
	BuiltinCheck   = "check"
	BuiltinAssert  = "assert"
	BuiltinRetract = "retract"
	BuiltinPost    = "post"
	BuiltinSucceed = "succeed"
	BuiltinFail    = "fail"
)

func builtinNodes() []*Node {
	unary := func(name, role, typ string) *Node {
		return &Node{Name: name, Type: "misc", Operation: name, Roles: []Role{{Name: role, Type: typ}}, Source: "builtin"}
	}
	return []*Node{
		unary(BuiltinHolds, "fact", "predicate"),
		unary(BuiltinCheck, "expr", "string"),
		unary(BuiltinAssert, "fact", "predicate"),
		unary(BuiltinRetract, "fact", "predicate"),
		unary(BuiltinPost, "goal", "predicate"),
		{Name: BuiltinSucceed, Type: "misc", Operation: BuiltinSucceed, Source: "builtin"},
		{Name: BuiltinFail, Type: "misc", Operation: BuiltinFail, Source: "builtin"},
	}
}

// IsBuiltin reports whether name is executed inside the engine
func IsBuiltin(name string) bool {
	switch name {
	case BuiltinHolds, BuiltinCheck, BuiltinAssert, BuiltinRetract, BuiltinPost, BuiltinSucceed, BuiltinFail:
		return true
	}
	return false
}
