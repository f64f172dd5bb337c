package config

import (
	"strings"
	"testing"
)

func TestDefaultsMatchSourceConstants(t *testing.T) {
	cfg := Defaults()
	if cfg.StackMax != 8192 || cfg.FrameStackMax != 4096 || cfg.GlobalsMax != 4096 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.MaxWorkers != 15 || cfg.MaxMutexes != 64 || cfg.ThreadNameMax != 64 {
		t.Fatalf("unexpected concurrency defaults: %+v", cfg)
	}
}

func TestDecodeOverridesOnlyMentionedFields(t *testing.T) {
	r := strings.NewReader("max_workers = 4\nverbose_errors = true\n")
	cfg, err := decode(r, Defaults())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.MaxWorkers != 4 {
		t.Fatalf("expected max_workers override, got %d", cfg.MaxWorkers)
	}
	if !cfg.VerboseErrors {
		t.Fatalf("expected verbose_errors override to apply")
	}
	if cfg.StackMax != 8192 {
		t.Fatalf("expected untouched field to keep default, got %d", cfg.StackMax)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/pscalvm.toml")
	if err != nil {
		t.Fatalf("Load on missing file should not error: %v", err)
	}
	if cfg != Defaults() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}
