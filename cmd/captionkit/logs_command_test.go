package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"captionkit/internal/logging"
)

func TestLogsCommandFiltersRun(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.MkdirAll(env.cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatal(err)
	}
	content := "" +
		"2026-01-02T03:04:05Z INFO batch: caption run started run_id=aaa\n" +
		"2026-01-02T03:04:06Z INFO batch: caption run started run_id=bbb\n" +
		"2026-01-02T03:04:07Z INFO batch: caption run completed run_id=aaa\n"
	if err := os.WriteFile(filepath.Join(env.cfg.Paths.LogDir, logging.FileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := runCLI(t, []string{"logs", "--run", "aaa"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if got := strings.Count(out, "run_id=aaa"); got != 2 {
		t.Fatalf("expected 2 lines for run aaa, got %d in %q", got, out)
	}
	if strings.Contains(out, "run_id=bbb") {
		t.Fatalf("unexpected line from other run in %q", out)
	}

	out, _, err = runCLI(t, []string{"logs", "-n", "1"}, env.configPath)
	if err != nil {
		t.Fatalf("logs -n 1: %v", err)
	}
	requireContains(t, out, "caption run completed")
	if strings.Count(out, "\n") != 1 {
		t.Fatalf("expected a single line, got %q", out)
	}
}
