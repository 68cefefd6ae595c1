package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out.String()
}

func TestRunThenInspect(t *testing.T) {
	db := filepath.Join(t.TempDir(), "chronicle", "kindred.db")

	out := execute(t, "run", "--ticks", "30", "--seed", "3", "--db", db, "--log-level", "error")
	if !strings.Contains(out, "30 ticks") || !strings.Contains(out, "GROUP") {
		t.Fatalf("run summary:\n%s", out)
	}
	if !strings.Contains(out, "fam_1") {
		t.Fatalf("summary lists no families:\n%s", out)
	}

	out = execute(t, "inspect", "--db", db)
	if !strings.Contains(out, "seed 3") || !strings.Contains(out, "latest of 1 snapshots") {
		t.Fatalf("inspect:\n%s", out)
	}
}

func TestConfigFileAndBadLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kindred.yaml")
	body := "sandbox:\n  groups: 2\n  family_size: 3\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	out := execute(t, "run", "-c", path, "-n", "5")
	if !strings.Contains(out, "2 groups, 6 actors") {
		t.Fatalf("summary:\n%s", out)
	}

	cmd := NewRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"run", "--log-level", "loud"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("bad log level accepted")
	}
}
