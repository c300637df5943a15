package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PORT", "")
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server.Port != 8000 || c.Server.Addr() != "0.0.0.0:8000" {
		t.Fatalf("unexpected server defaults: %+v", c.Server)
	}
	if c.Plot.MaxChars != 100000 || c.Plot.Format != "png" {
		t.Fatalf("unexpected plot defaults: %+v", c.Plot)
	}
	if !c.Analysis.FallbackAnswers {
		t.Fatalf("fallback answers should default on")
	}
	if c.HTTP.BaseDelay() != 500*time.Millisecond || c.Plot.MinRenderBudget() != 2*time.Second {
		t.Fatalf("unexpected durations: %v %v", c.HTTP.BaseDelay(), c.Plot.MinRenderBudget())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PORT", "9123")
	t.Setenv("ANALYST_PLOT_MAX_CHARS", "50000")
	t.Setenv("ANALYST_ANALYSIS_FALLBACK_ANSWERS", "false")
	t.Setenv("OPENROUTER_API_KEY", "sk-test")
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server.Port != 9123 {
		t.Fatalf("PORT not honoured: %d", c.Server.Port)
	}
	if c.Plot.MaxChars != 50000 || c.Analysis.FallbackAnswers {
		t.Fatalf("env overrides not applied: %+v %+v", c.Plot, c.Analysis)
	}
	if c.LLM.APIKey != "sk-test" {
		t.Fatalf("api key: %q", c.LLM.APIKey)
	}
}

func TestSaveAndLoadFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PORT", "")
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c.Plot.Width = 640
	c.Log.Level = "debug"
	path := filepath.Join(t.TempDir(), "analyst.yaml")
	if err := Save(c, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load file: %v", err)
	}
	if got.Plot.Width != 640 || got.Log.Level != "debug" {
		t.Fatalf("file values not loaded: %+v %+v", got.Plot, got.Log)
	}
	used, err := FileUsed(path)
	if err != nil || used != path {
		t.Fatalf("FileUsed: %q %v", used, err)
	}
}

func TestSaveDefaultLocation(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("PORT", "")
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c.Server.Port = 8111
	if err := Save(c, ""); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, ".analyst", "config.yaml")); err != nil {
		t.Fatalf("config not written: %v", err)
	}
	got, err := Load("")
	if err != nil || got.Server.Port != 8111 {
		t.Fatalf("reload from home: %+v %v", got, err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("log:\n  format: xml\nplot:\n  max_chars: 0\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PORT", "")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestWatchReloads(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PORT", "")
	path := filepath.Join(t.TempDir(), "watch.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: info\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan *Global, 4)
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, func(c *Global) { got <- c }) }()

	// give the watcher a moment to register
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// a truncate can surface as its own event, so wait for the final content
	deadline := time.After(3 * time.Second)
	for reloaded := false; !reloaded; {
		select {
		case c := <-got:
			reloaded = c.Log.Level == "debug"
		case <-deadline:
			t.Fatalf("no reload observed")
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Watch: %v", err)
	}
}
