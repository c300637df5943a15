package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// isolate points HOME at a temp dir and clears provider keys from the env.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{"OPENROUTER_API_KEY", "OPENAI_API_KEY", "ANALYST_LLM_API_KEY", "PORT"} {
		t.Setenv(k, "")
	}
	return home
}

// resetFlags restores every flag to its default so Changed state does not
// leak between invocations.
func resetFlags(c *cobra.Command) {
	reset := func(fl *pflag.Flag) {
		_ = fl.Value.Set(fl.DefValue)
		fl.Changed = false
	}
	c.PersistentFlags().VisitAll(reset)
	c.Flags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// mustRun is a helper to execute the root command with args and return stdout.
func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execCmd(args...)
	if err != nil {
		t.Fatalf("command %v failed: %v", args, err)
	}
	return out
}

func execCmd(args ...string) (string, error) {
	resetFlags(rootCmd)
	cfg = nil
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), err
}

func writePoints(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "points.csv")
	data := "year,delay\n2019,50\n2020,56\n2021,59\n2022,66\n2023,70\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func TestCLI_ConfigSetShow(t *testing.T) {
	isolate(t)

	mustRun(t, "config", "set", "plot.max_chars", "50000")
	mustRun(t, "config", "set", "llm.api_key", "sk-abcdef123456")
	mustRun(t, "config", "set", "plot.format", "jpg")

	out := mustRun(t, "config", "show")
	if !strings.Contains(out, "plot.max_chars: 50000") {
		t.Fatalf("max_chars not persisted:\n%s", out)
	}
	if !strings.Contains(out, "plot.format: jpeg") {
		t.Fatalf("format not normalised:\n%s", out)
	}
	if strings.Contains(out, "sk-abcdef123456") || !strings.Contains(out, "llm.api_key: sk-****456") {
		t.Fatalf("api key not masked:\n%s", out)
	}
}

func TestCLI_ConfigSetRejectsBadValues(t *testing.T) {
	isolate(t)
	if _, err := execCmd("config", "set", "nope", "1"); err == nil {
		t.Fatalf("expected unknown key error")
	}
	if _, err := execCmd("config", "set", "plot.format", "gif"); err == nil {
		t.Fatalf("expected format error")
	}
	if _, err := execCmd("config", "set", "plot.width", "-3"); err == nil {
		t.Fatalf("expected int error")
	}
}

func TestCLI_RenderDataURI(t *testing.T) {
	home := isolate(t)
	csvPath := writePoints(t, home)

	out := strings.TrimSpace(mustRun(t, "render", csvPath, "--max-chars", "60000"))
	if !strings.HasPrefix(out, "data:image/") {
		t.Fatalf("expected data URI, got %.60q", out)
	}
	if len(out) > 60000 {
		t.Fatalf("data URI has %d chars, limit 60000", len(out))
	}
}

func TestCLI_RenderToFile(t *testing.T) {
	home := isolate(t)
	csvPath := writePoints(t, home)
	img := filepath.Join(home, "plot.png")

	out := mustRun(t, "render", csvPath, "--x", "year", "--y", "delay", "-o", img)
	if !strings.Contains(out, "✓ Wrote") {
		t.Fatalf("unexpected output: %q", out)
	}
	b, err := os.ReadFile(img)
	if err != nil {
		t.Fatalf("read image: %v", err)
	}
	if !bytes.HasPrefix(b, []byte("\x89PNG")) {
		t.Fatalf("expected PNG signature, got % x", b[:8])
	}
}

func TestCLI_RenderErrors(t *testing.T) {
	home := isolate(t)
	csvPath := writePoints(t, home)
	if _, err := execCmd("render", csvPath, "--x", "missing"); err == nil {
		t.Fatalf("expected missing column error")
	}
	flat := filepath.Join(home, "flat.csv")
	if err := os.WriteFile(flat, []byte("x,y\n1,1\n1,2\n1,3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := execCmd("render", flat); err == nil {
		t.Fatalf("expected degenerate input error")
	}
}

func TestCLI_RunGenericTask(t *testing.T) {
	home := isolate(t)
	taskPath := filepath.Join(home, "question.txt")
	if err := os.WriteFile(taskPath, []byte("Describe the attached numbers.\n1. What is the trend?\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	outPath := filepath.Join(home, "answer.json")
	mustRun(t, "run", taskPath, "-o", outPath)

	b, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read answer: %v", err)
	}
	var got []any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("decode answer: %v\n%s", err, b)
	}
	if len(got) != 4 || got[0] != "Analysis completed" {
		t.Fatalf("unexpected answer: %v", got)
	}
	uri, _ := got[3].(string)
	if !strings.HasPrefix(uri, "data:image/png;base64,") {
		t.Fatalf("expected png data URI, got %.40q", uri)
	}
}
