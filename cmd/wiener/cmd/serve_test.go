package cmd

import (
	"testing"
	"time"

	"github.com/msto63/wiener/pkg/core/config"
)

func TestApplyServeFlags(t *testing.T) {
	flags := serveCmd.Flags()
	for name, value := range map[string]string{
		"want":   "speech/voice:2",
		"goal":   "at(robot, dock)",
		"forbid": "move(street)",
		"cycle":  "50ms",
		"sleep":  "true",
		"port":   "8700",
	} {
		if err := flags.Set(name, value); err != nil {
			t.Fatalf("Set(%s): %v", name, err)
		}
	}

	cfg := config.Default()
	if err := applyServeFlags(serveCmd, cfg); err != nil {
		t.Fatalf("applyServeFlags: %v", err)
	}
	if len(cfg.Providers) != 1 || cfg.Providers[0] != (config.ProviderWant{Type: "speech", Name: "voice", Priority: 2}) {
		t.Errorf("Providers = %+v", cfg.Providers)
	}
	if cfg.Engine.CycleBudget.Duration != 50*time.Millisecond || !cfg.Engine.Sleep {
		t.Errorf("Engine = %+v", cfg.Engine)
	}
	if cfg.HTTP.Port != 8700 {
		t.Errorf("HTTP.Port = %d, want 8700", cfg.HTTP.Port)
	}

	goals, err := parseTerms("goal", cfg.Engine.Goals)
	if err != nil || len(goals) != 1 || goals[0].String() != "at(robot,dock)" {
		t.Errorf("goals = %v, %v", goals, err)
	}
	if _, err := parseTerms("action", []string{"move(("}); err == nil {
		t.Error("parseTerms accepted a malformed term")
	}
}
