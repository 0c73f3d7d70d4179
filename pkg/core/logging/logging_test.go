package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	werr "github.com/msto63/wiener/foundation/core/error"
)

func TestToFields(t *testing.T) {
	tests := []struct {
		name string
		in   []interface{}
		want int
	}{
		{"empty", nil, 0},
		{"pairs", []interface{}{"goal", 1, "op", "move"}, 2},
		{"odd", []interface{}{"goal", 1, "dangling"}, 1},
		{"non-string key", []interface{}{3, "x", "ok", true}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(toFields(tt.in...)); got != tt.want {
				t.Errorf("len(toFields) = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestConfigureAndNew(t *testing.T) {
	var buf bytes.Buffer
	if err := Configure(Config{Level: "debug", Format: "text", Output: &buf}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	defer Configure(Config{Level: "info"})

	logger := New("engine").With("goal", 4)
	logger.Debug("cycle", "pc", 2)

	out := buf.String()
	for _, want := range []string{"{engine}", "cycle", "goal=4", "pc=2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
	if logger.Name() != "engine" {
		t.Errorf("Name() = %q", logger.Name())
	}
}

func TestConfigureRejectsUnknownLevel(t *testing.T) {
	if err := Configure(Config{Level: "shouty"}); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestDiscard(t *testing.T) {
	Discard().Error("nothing", "k", "v")
}

func TestFailureLevelFollowsSeverity(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{werr.New("no script for goal").WithCode(werr.CodeUnachievable), `"level":"INFO"`},
		{errors.New("connection reset"), `"level":"WARN"`},
		{werr.New("disk I/O error").WithCode(werr.CodeDatabaseError), `"severity":"high"`},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		if err := Configure(Config{Level: "debug", Format: "json", Output: &buf}); err != nil {
			t.Fatalf("Configure: %v", err)
		}
		New("orchestrator").Failure("goal failed", tt.err, "goal", 3)
		if out := buf.String(); !strings.Contains(out, tt.want) {
			t.Errorf("Failure(%v) wrote %q, want %s", tt.err, out, tt.want)
		}
	}
	Configure(Config{Level: "info"})
}
