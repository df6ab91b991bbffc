package sessionlog

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
)

var sessionPattern = regexp.MustCompile(`^session-\d{8}-\d{6}$`)

func TestCreateSession(t *testing.T) {
	base := t.TempDir()

	path, err := CreateSession(base)
	if err != nil {
		t.Fatal(err)
	}

	name := filepath.Base(path)
	if !sessionPattern.MatchString(name) {
		t.Errorf("unexpected session name %q", name)
	}
	if fi, err := os.Stat(path); err != nil || !fi.IsDir() {
		t.Errorf("session dir not created: %v", err)
	}

	target, err := os.Readlink(filepath.Join(base, "latest"))
	if err != nil {
		t.Fatal(err)
	}
	if target != name {
		t.Errorf("latest points at %q, want %q", target, name)
	}
}

func TestCreateSessionRepointsLatest(t *testing.T) {
	base := t.TempDir()

	if err := os.Symlink("session-old", filepath.Join(base, "latest")); err != nil {
		t.Fatal(err)
	}

	path, err := CreateSession(base)
	if err != nil {
		t.Fatal(err)
	}

	target, err := os.Readlink(filepath.Join(base, "latest"))
	if err != nil {
		t.Fatal(err)
	}
	if target != filepath.Base(path) {
		t.Errorf("latest not repointed: %q", target)
	}
}

func makeSession(t *testing.T, base, name string, files ...string) {
	t.Helper()
	dir := filepath.Join(base, name)
	if err := os.Mkdir(dir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("x\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestPrune(t *testing.T) {
	base := t.TempDir()
	names := []string{
		"session-20991231-000000",
		"session-20991231-000001",
		"session-20991231-000002",
		"session-20991231-000003",
		"session-20991231-000004",
	}
	for _, n := range names {
		makeSession(t, base, n, "ttyUSB0.log")
	}

	if err := Prune(base, 3); err != nil {
		t.Fatal(err)
	}

	for _, n := range names[:2] {
		if _, err := os.Stat(filepath.Join(base, n)); !os.IsNotExist(err) {
			t.Errorf("%s should have been pruned", n)
		}
	}
	for _, n := range names[2:] {
		if _, err := os.Stat(filepath.Join(base, n)); err != nil {
			t.Errorf("%s should have been kept: %v", n, err)
		}
	}
}

func TestPruneUnderKeep(t *testing.T) {
	base := t.TempDir()
	makeSession(t, base, "session-20991231-000000")
	makeSession(t, base, "session-20991231-000001")

	if err := Prune(base, 10); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 sessions untouched, got %d", len(entries))
	}
}

func TestPruneIgnoresOtherEntries(t *testing.T) {
	base := t.TempDir()
	for i := 0; i < 4; i++ {
		makeSession(t, base, "session-20991231-00000"+string(rune('0'+i)))
	}
	if err := os.WriteFile(filepath.Join(base, "status.json"), []byte("{}\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := Prune(base, 2); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(base, "status.json")); err != nil {
		t.Errorf("status.json should be untouched: %v", err)
	}
}

func TestPruneKeepsDirWithDotFiles(t *testing.T) {
	base := t.TempDir()
	makeSession(t, base, "session-20991231-000000", ".keep")
	makeSession(t, base, "session-20991231-000001")
	makeSession(t, base, "session-20991231-000002")

	if err := Prune(base, 1); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(base, "session-20991231-000000", ".keep")); err != nil {
		t.Errorf("dot-file session should survive pruning: %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "session-20991231-000001")); !os.IsNotExist(err) {
		t.Error("session-20991231-000001 should have been pruned")
	}
}
