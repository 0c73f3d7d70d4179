package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDuration_UnmarshalText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"seconds", "30s", 30 * time.Second, false},
		{"milliseconds", "100ms", 100 * time.Millisecond, false},
		{"complex", "1m30s", 90 * time.Second, false},
		{"invalid", "soon", 0, true},
		{"empty", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := d.UnmarshalText([]byte(tt.input))

			if (err != nil) != tt.wantErr {
				t.Errorf("UnmarshalText() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && d.Duration != tt.expected {
				t.Errorf("UnmarshalText() = %v, want %v", d.Duration, tt.expected)
			}
		})
	}
}

func TestDuration_MarshalText(t *testing.T) {
	d := Duration{250 * time.Millisecond}
	result, err := d.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText() error = %v", err)
	}
	if string(result) != "250ms" {
		t.Errorf("MarshalText() = %v, want 250ms", string(result))
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.General.Name != "wiener" {
		t.Errorf("General.Name = %v, want wiener", cfg.General.Name)
	}
	if cfg.Engine.CycleBudget.Duration != 100*time.Millisecond {
		t.Errorf("Engine.CycleBudget = %v, want 100ms", cfg.Engine.CycleBudget.Duration)
	}
	if cfg.Engine.InvokeTimeout.Duration != 10*time.Second {
		t.Errorf("Engine.InvokeTimeout = %v, want 10s", cfg.Engine.InvokeTimeout.Duration)
	}
	if cfg.HTTPAddress() != "0.0.0.0:8600" {
		t.Errorf("HTTPAddress() = %v, want 0.0.0.0:8600", cfg.HTTPAddress())
	}
	if cfg.Store.Path != filepath.Join("./data", "wiener.db") {
		t.Errorf("Store.Path = %v", cfg.Store.Path)
	}
	if cfg.Planner.Kind != "pabt" {
		t.Errorf("Planner.Kind = %v, want pabt", cfg.Planner.Kind)
	}
	if cfg.Provider.Port != 9300 || cfg.Provider.Heartbeat.Duration != 10*time.Second {
		t.Errorf("Provider = %+v", cfg.Provider)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/path/wiener.toml"); err == nil {
		t.Error("Load() expected error for non-existent file")
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	t.Setenv("WIENER_TEST_DATA", "/var/lib/wiener")
	configPath := filepath.Join(t.TempDir(), "wiener.toml")

	configContent := `
[general]
actor = "robot"
data_dir = "${WIENER_TEST_DATA}"

[engine]
cycle_budget = "50ms"
sleep = true
forbid = ["launch"]
forbid_states = ["broken(arm)"]

[[providers]]
type = "speech"
priority = 2

[[providers]]
type = "motion"
name = "base"

[http]
port = 9999

[planner]
kind = "none"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.General.Actor != "robot" {
		t.Errorf("General.Actor = %v, want robot", cfg.General.Actor)
	}
	if cfg.General.DataDir != "/var/lib/wiener" {
		t.Errorf("General.DataDir = %v, want expanded path", cfg.General.DataDir)
	}
	if cfg.Store.Path != "/var/lib/wiener/wiener.db" {
		t.Errorf("Store.Path = %v, want it under the data dir", cfg.Store.Path)
	}
	if cfg.Engine.CycleBudget.Duration != 50*time.Millisecond || !cfg.Engine.Sleep {
		t.Errorf("Engine = %+v", cfg.Engine)
	}
	if len(cfg.Engine.Forbid) != 1 || len(cfg.Engine.ForbidStates) != 1 {
		t.Errorf("forbid lists = %v / %v", cfg.Engine.Forbid, cfg.Engine.ForbidStates)
	}
	if len(cfg.Providers) != 2 {
		t.Fatalf("Providers = %+v", cfg.Providers)
	}
	if cfg.Providers[0].Priority != 2 || cfg.Providers[1].Priority != 1 || cfg.Providers[1].Name != "base" {
		t.Errorf("Providers = %+v", cfg.Providers)
	}
	if cfg.HTTP.Port != 9999 || cfg.HTTP.Host != "0.0.0.0" {
		t.Errorf("HTTP = %+v", cfg.HTTP)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"redis without url", "[planner]\nkind = \"redis\"\n"},
		{"unknown planner", "[planner]\nkind = \"oracle\"\n"},
		{"provider without type", "[[providers]]\nname = \"x\"\n"},
		{"syntax", "[engine\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "wiener.toml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("Load() expected error")
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.toml")
	if err := os.WriteFile(path, []byte("[general]\nname = \"lab\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvVar, path)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.General.Name != "lab" {
		t.Errorf("General.Name = %v, want lab", cfg.General.Name)
	}
}

func TestLoadFromEnv_NoConfigFound(t *testing.T) {
	t.Setenv(EnvVar, "")
	t.Setenv("HOME", t.TempDir())

	originalWd, _ := os.Getwd()
	os.Chdir(t.TempDir())
	defer os.Chdir(originalWd)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.General.Name != "wiener" {
		t.Errorf("expected defaults, got %+v", cfg.General)
	}
}
