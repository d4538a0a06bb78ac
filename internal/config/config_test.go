package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	defaults := Default()
	if cfg.MaxRounds != defaults.MaxRounds {
		t.Errorf("MaxRounds = %d, want %d", cfg.MaxRounds, defaults.MaxRounds)
	}
	if cfg.QualityTarget != defaults.QualityTarget {
		t.Errorf("QualityTarget = %d, want %d", cfg.QualityTarget, defaults.QualityTarget)
	}
	if cfg.BranchPrefix != "codemend" {
		t.Errorf("BranchPrefix = %q, want codemend", cfg.BranchPrefix)
	}
	if cfg.GateTimeout != 30*time.Second {
		t.Errorf("GateTimeout = %v, want 30s", cfg.GateTimeout)
	}
}

func TestLoad_FileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "codemend.yaml")
	yaml := "max_rounds: 5\nquality_target: 9\nbranch_prefix: mend\ngate_timeout: 10s\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.MaxRounds != 5 {
		t.Errorf("MaxRounds = %d, want 5", cfg.MaxRounds)
	}
	if cfg.QualityTarget != 9 {
		t.Errorf("QualityTarget = %d, want 9", cfg.QualityTarget)
	}
	if cfg.BranchPrefix != "mend" {
		t.Errorf("BranchPrefix = %q, want mend", cfg.BranchPrefix)
	}
	if cfg.GateTimeout != 10*time.Second {
		t.Errorf("GateTimeout = %v, want 10s", cfg.GateTimeout)
	}
	// Untouched keys keep their defaults
	if cfg.MaxFixesPerRound != 10 {
		t.Errorf("MaxFixesPerRound = %d, want 10", cfg.MaxFixesPerRound)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "codemend.yaml")
	if err := os.WriteFile(path, []byte("max_rounds: 5\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CODEMEND_MAX_ROUNDS", "7")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MaxRounds != 7 {
		t.Errorf("MaxRounds = %d, want 7 (env wins over file)", cfg.MaxRounds)
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"rounds too high", "max_rounds: 100\n"},
		{"target out of range", "quality_target: 15\n"},
		{"empty branch prefix", "branch_prefix: \"\"\n"},
		{"zero fixes", "max_fixes_per_round: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "codemend.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestWriteDefault_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".codemend.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load of written defaults failed: %v", err)
	}
	defaults := Default()
	if cfg.MaxRounds != defaults.MaxRounds || cfg.GateTimeout != defaults.GateTimeout {
		t.Errorf("written defaults do not round-trip: got %+v", cfg)
	}

	if err := WriteDefault(path); err == nil {
		t.Error("expected error overwriting existing config")
	}
}

func TestValidate_Defaults(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}
