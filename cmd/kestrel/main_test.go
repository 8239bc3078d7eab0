package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

// isolated returns flags pointing storage and the model at a temp dir.
func isolated(t *testing.T) []string {
	dir := t.TempDir()
	return []string{
		"--db", filepath.Join(dir, "kestrel.db"),
		"--model", filepath.Join(dir, "model.json"),
		"--log-level", "error",
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, "kestrel dev") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestAnalyzeCommand(t *testing.T) {
	args := append([]string{"analyze", "url", "http://192.168.1.1/login", "--mode", "heuristic"}, isolated(t)...)

	out, err := runCommand(t, args...)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if !strings.Contains(out, `"label": "likely_scam"`) {
		t.Errorf("unexpected output %s", out)
	}

	if _, err := runCommand(t, append([]string{"analyze", "email", "a@b.c"}, isolated(t)...)...); err == nil {
		t.Error("expected error for unsupported type")
	}
}

func TestBlacklistCommands(t *testing.T) {
	flags := isolated(t)

	out, err := runCommand(t, append([]string{"blacklist", "add", "phone", "+15550001111", "--trust", "0.95"}, flags...)...)
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if !strings.Contains(out, "trust 0.95") {
		t.Errorf("unexpected add output %q", out)
	}

	out, err = runCommand(t, append([]string{"blacklist", "list", "--type", "phone"}, flags...)...)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(out, "+15550001111") || !strings.Contains(out, "operator") {
		t.Errorf("unexpected list output %q", out)
	}

	if _, err := runCommand(t, append([]string{"blacklist", "remove", "phone", "+15550001111"}, flags...)...); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if _, err := runCommand(t, append([]string{"blacklist", "remove", "phone", "+15550001111"}, flags...)...); err == nil {
		t.Error("expected error removing a missing entry")
	}
}

func TestSeedAndTrainCommands(t *testing.T) {
	flags := isolated(t)

	out, err := runCommand(t, append([]string{"seed"}, flags...)...)
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if !strings.Contains(out, "Seeded 7 blacklist entries") {
		t.Errorf("unexpected seed output %q", out)
	}

	out, err = runCommand(t, append([]string{"train"}, flags...)...)
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}
	if !strings.Contains(out, "Model written to") || !strings.Contains(out, "10 synthesized") {
		t.Errorf("unexpected train output %q", out)
	}
}
