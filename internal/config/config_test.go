package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "flexstore.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
		if err != nil {
			t.Fatalf("Load() failed: %v", err)
		}
		if *cfg != *Default() {
			t.Errorf("Load() = %+v, want defaults", cfg)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		t.Parallel()
		cfg, err := Load(writeConfig(t, ""))
		if err != nil {
			t.Fatalf("Load() failed: %v", err)
		}
		if cfg.ChunkSize != 100 || cfg.DataDir != "./data" {
			t.Errorf("Load() = %+v", cfg)
		}
	})

	t.Run("values", func(t *testing.T) {
		t.Parallel()
		cfg, err := Load(writeConfig(t, `
data_dir: /var/lib/flexstore
chunk_size: 10
log_level: debug
versioned: true
watch: true
watch_interval: 250ms
author:
  name: Ada
  email: ada@example.com
`))
		if err != nil {
			t.Fatalf("Load() failed: %v", err)
		}
		want := Config{
			DataDir:       "/var/lib/flexstore",
			ChunkSize:     10,
			LogLevel:      "debug",
			Versioned:     true,
			Watch:         true,
			WatchInterval: 250 * time.Millisecond,
		}
		want.Author.Name = "Ada"
		want.Author.Email = "ada@example.com"
		if *cfg != want {
			t.Errorf("Load() = %+v, want %+v", cfg, want)
		}
		if s := cfg.Store(); s.Dir != "/var/lib/flexstore" || s.ChunkSize != 10 {
			t.Errorf("Store() = %+v", s)
		}
		if l, _ := cfg.Level(); l != slog.LevelDebug {
			t.Errorf("Level() = %v", l)
		}
	})

	t.Run("errors", func(t *testing.T) {
		t.Parallel()
		tests := []struct {
			name    string
			content string
		}{
			{"unknown key", "data_dirr: x\n"},
			{"bad yaml", "data_dir: [\n"},
			{"bad chunk size", "chunk_size: 0\n"},
			{"bad log level", "log_level: loud\n"},
			{"empty data dir", "data_dir: \"\"\n"},
			{"negative interval", "watch_interval: -1s\n"},
			{"versioned without author", "versioned: true\nauthor:\n  name: \"\"\n"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()
				if _, err := Load(writeConfig(t, tt.content)); err == nil {
					t.Errorf("Load(%q) succeeded", tt.content)
				}
			})
		}
	})
}
