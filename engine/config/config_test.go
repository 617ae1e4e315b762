package config

import (
	"context"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-skin/engine/logger"
)

func TestParseFillsDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
[skinning]
backend = "GPU"
batch_size = 128

[log]
level = "debug"
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	def := Default()
	if cfg.Skinning.Backend != "gpu" {
		t.Errorf("Skinning.Backend = %q, want gpu", cfg.Skinning.Backend)
	}
	if cfg.Skinning.BatchSize != 128 {
		t.Errorf("Skinning.BatchSize = %d, want 128", cfg.Skinning.BatchSize)
	}
	if cfg.Skinning.QueueSize != def.Skinning.QueueSize {
		t.Errorf("Skinning.QueueSize = %d, want %d", cfg.Skinning.QueueSize, def.Skinning.QueueSize)
	}
	if cfg.Engine.TickRate != def.Engine.TickRate {
		t.Errorf("Engine.TickRate = %d, want %d", cfg.Engine.TickRate, def.Engine.TickRate)
	}
	if !cfg.GPU.Software {
		t.Error("GPU.Software = false, want the default true when the section is absent")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown backend", "[skinning]\nbackend = \"cuda\""},
		{"negative batch", "[skinning]\nbatch_size = -1"},
		{"negative workers", "[skinning]\nworkers = -2"},
		{"negative frames", "[engine]\nframes = -5"},
		{"bad toml", "[skinning\nbackend = 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.doc)); err == nil {
				t.Errorf("Parse(%q) error = nil, want error", tt.doc)
			}
		})
	}
	if _, err := Parse([]byte("[skinning]\nbackend = \"cuda\"")); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Parse() error = %v, want ErrInvalidConfig", err)
	}
}

func TestMarshalRoundTripsThroughParse(t *testing.T) {
	want := Default()
	want.Skinning.Backend = "sequential"
	want.GPU.Validate = true
	data, err := want.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got != want {
		t.Errorf("Parse(Marshal()) = %+v, want %+v", got, want)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Load() error = nil for a missing file")
	}
}

func TestBindFlagsOverride(t *testing.T) {
	cfg := Default()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg.BindFlags(fs)
	if err := fs.Parse([]string{"-backend", "gpu", "-frames", "7", "-soft-gpu=false"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Skinning.Backend != "gpu" || cfg.Engine.Frames != 7 || cfg.GPU.Software {
		t.Errorf("after flags = %+v, want backend gpu, 7 frames, hardware device", cfg)
	}
	if cfg.Skinning.BatchSize != Default().Skinning.BatchSize {
		t.Errorf("Skinning.BatchSize = %d, want unchanged default", cfg.Skinning.BatchSize)
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skin.toml")
	if err := os.WriteFile(path, []byte("[skinning]\nbatch_size = 8\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan Config, 16)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, logger.Discard(), func(c Config) { changes <- c })
	}()

	// Keep rewriting until the watcher is running and reports the change.
	deadline := time.After(10 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case c := <-changes:
			// A reload can observe the file between truncate and write.
			if c.Skinning.BatchSize != 32 {
				continue
			}
			cancel()
			if err := <-done; err != nil {
				t.Errorf("Watch() error = %v", err)
			}
			return
		case <-tick.C:
			if err := os.WriteFile(path, []byte("[skinning]\nbatch_size = 32\n"), 0o644); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}
		case <-deadline:
			t.Fatal("Watch() did not report a change within 10s")
		}
	}
}
