package script

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const fetchYAML = `
types:
  - name: gripper
    parent: motion
scripts:
  - name: move
    type: motion
    roles:
      - name: place
    locks: [base]
    effects: ["at(robot, ?place)"]
  - name: grasp
    type: gripper
    roles:
      - name: obj
      - name: result
        return: true
    locks: [arm]
    success_effects: ["holding(?obj)"]
  - name: fetch
    roles:
      - name: obj
      - name: place
        default: kitchen
    cost: 2
    benefit: 10
    timeout: 30s
    body: |
      move(?place)
      if holds(visible(?obj)) then
        grasp(?obj, ?r)
      else
        fail
      endif
    success_effects: ["delivered(?obj)"]
`

func TestParseBody(t *testing.T) {
	body, err := ParseBody("while holds(busy) do wait(1), endwhile; achieve at(robot, ?p) not fail endnot")
	if err != nil {
		t.Fatalf("ParseBody: %v", err)
	}
	want := []TokenKind{TokWhile, TokInvoke, TokDo, TokInvoke, TokEndWhile, TokAchieve, TokNot, TokInvoke, TokEndNot}
	if len(body) != len(want) {
		t.Fatalf("got %d tokens (%s), want %d", len(body), FormatBody(body), len(want))
	}
	for i, k := range want {
		if body[i].Kind != k {
			t.Errorf("token %d = %s, want kind %d", i, body[i], k)
		}
	}
	if body[5].Call.String() != "at(robot,?p)" {
		t.Errorf("achieve goal = %s", body[5].Call)
	}
}

func TestParseBodyRejectsBareNumbers(t *testing.T) {
	if _, err := ParseBody("move(a) 42"); err == nil {
		t.Error("expected error for numeric statement")
	}
}

func buildFetch(t *testing.T) *Registry {
	t.Helper()
	f, err := Parse([]byte(fetchYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	reg, err := Build(map[string]*File{"fetch.yaml": f})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return reg
}

func TestRegistryCategories(t *testing.T) {
	reg := buildFetch(t)

	tests := []struct {
		name      string
		primitive bool
		category  Category
		isA       string
	}{
		{"move", true, CategoryMotion, TypeAction},
		{"grasp", true, CategoryMotion, "gripper"},
		{"fetch", false, CategoryNone, TypeAction},
		{"holds", true, CategoryMisc, TypePrimitive},
	}
	for _, tt := range tests {
		n, ok := reg.Lookup(tt.name)
		if !ok {
			t.Fatalf("%s not found", tt.name)
		}
		if n.IsPrimitive() != tt.primitive || n.Category() != tt.category {
			t.Errorf("%s: primitive=%v category=%s", tt.name, n.IsPrimitive(), n.Category())
		}
		if !n.IsA(tt.isA) {
			t.Errorf("%s should be a %s, ancestors %v", tt.name, tt.isA, n.Ancestors())
		}
	}

	fetch, _ := reg.Lookup("fetch")
	if fetch.Timeout.Seconds() != 30 || fetch.Roles[1].Default == nil {
		t.Errorf("fetch fields not built: %+v", fetch)
	}
	move, _ := reg.Lookup("move")
	if move.Operation != "move" {
		t.Errorf("primitive operation defaults to name, got %q", move.Operation)
	}
}

func TestRegistryByPostcondition(t *testing.T) {
	reg := buildFetch(t)

	matches := reg.ByPostcondition(MustParseTerm("at(robot, dock)"))
	if len(matches) != 1 || matches[0].Node.Name != "move" {
		t.Fatalf("matches = %+v", matches)
	}
	if got := matches[0].Bindings.Substitute(Var("place")); !got.Equal(Atom("dock")) {
		t.Errorf("?place = %s, want dock", got)
	}

	if got := reg.ByPostcondition(MustParseTerm("flying(robot)")); len(got) != 0 {
		t.Errorf("unexpected match %+v", got)
	}
}

func TestRegistryValidation(t *testing.T) {
	tests := []struct {
		name  string
		types []TypeDef
		nodes []*Node
		want  error
	}{
		{"unknown invoke", nil, []*Node{{Name: "a", Body: []Token{Invoke(Atom("nope"))}}}, ErrUnknownScript},
		{"duplicate", nil, []*Node{{Name: "a"}, {Name: "a"}}, ErrDuplicateScript},
		{"builtin clash", nil, []*Node{{Name: "holds"}}, ErrDuplicateScript},
		{"unknown type", nil, []*Node{{Name: "a", Type: "teleport"}}, ErrUnknownType},
		{"cycle", []TypeDef{{Name: "x", Parent: "y"}, {Name: "y", Parent: "x"}}, nil, ErrTypeCycle},
		{"primitive body", nil, []*Node{{Name: "a", Type: "motion", Body: []Token{Invoke(Atom("succeed"))}}}, ErrPrimitiveBody},
		{"too many args", nil, []*Node{{Name: "a", Body: []Token{Invoke(MustParseTerm("succeed(1)"))}}}, ErrTooManyArgs},
		{"keyword", nil, []*Node{{Name: "while"}}, ErrKeywordName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.types, tt.nodes)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoaderLoadAll(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "fetch.yaml"), []byte(fetchYAML), 0644); err != nil {
		t.Fatal(err)
	}
	lib := NewLibrary(nil)
	loader := NewLoader(dir, lib)

	var reloaded *Registry
	loader.SetOnReload(func(r *Registry) { reloaded = r })

	reg, err := loader.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if reloaded != reg || lib.Registry() != reg {
		t.Error("library and callback should receive the new registry")
	}
	if _, ok := lib.Lookup("fetch"); !ok {
		t.Error("fetch not visible through library")
	}

	if err := os.WriteFile(filepath.Join(dir, "broken.yml"), []byte("scripts:\n  - name: x\n    body: \"y(\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := loader.LoadAll(); err == nil {
		t.Fatal("expected syntax error")
	}
	if lib.Registry() != reg {
		t.Error("failed reload must keep the previous registry")
	}
}
