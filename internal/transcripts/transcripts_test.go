package transcripts

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDiscoverUsersListsFoldersSorted(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "bob", "meeting1.txt"), "b1")
	writeFile(t, filepath.Join(root, "alice", "meeting1.txt"), "a1")
	writeFile(t, filepath.Join(root, "stray.txt"), "not a folder")

	users, err := DiscoverUsers(root)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(users) != 2 || users[0] != "alice" || users[1] != "bob" {
		t.Fatalf("unexpected users: %v", users)
	}
}

func TestLoadForUserOrdersByFileName(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "alice", "meeting2_planning.txt"), "second")
	writeFile(t, filepath.Join(root, "alice", "meeting1_kickoff.txt"), "first")
	writeFile(t, filepath.Join(root, "alice", "notes.md"), "ignored")

	loaded, err := LoadForUser(root, "alice")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 transcripts, got %d", len(loaded))
	}
	if loaded[0].Name != "meeting1_kickoff.txt" || loaded[0].Text != "first" {
		t.Fatalf("unexpected first transcript: %+v", loaded[0])
	}
	if loaded[1].Name != "meeting2_planning.txt" || loaded[1].Text != "second" {
		t.Fatalf("unexpected second transcript: %+v", loaded[1])
	}
}

func TestLoadForUserMissingFolderFails(t *testing.T) {
	if _, err := LoadForUser(t.TempDir(), "nobody"); err == nil {
		t.Fatalf("expected error for missing user folder")
	}
}
