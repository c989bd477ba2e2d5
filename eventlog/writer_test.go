package eventlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRotatingWriter_CreateFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.log")

	rw, err := NewRotatingWriter(path, 1, 3)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer rw.Close()

	n, err := rw.Write([]byte("hello\n"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != 6 {
		t.Fatalf("Write returned %d, want 6", n)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "hello\n" {
		t.Fatalf("file content = %q, want %q", string(data), "hello\n")
	}
}

func TestRotatingWriter_RotatesOnSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.log")

	rw, err := NewRotatingWriter(path, 1, 3)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	// Override maxBytes directly for a small test
	rw.maxBytes = 100
	defer rw.Close()

	data := strings.Repeat("x", 60)
	rw.Write([]byte(data))
	rw.Write([]byte(data)) // should trigger rotation

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}

	rotatedCount := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "events-") && strings.HasSuffix(e.Name(), ".log") {
			rotatedCount++
		}
	}
	if rotatedCount < 1 {
		t.Errorf("expected at least 1 rotated file, got %d", rotatedCount)
	}

	// The live file holds only the post-rotation write.
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(content) != 60 {
		t.Errorf("expected 60 bytes in live file, got %d", len(content))
	}
}

func TestRotatingWriter_PruneKeepsNewestBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.log")

	rw, err := NewRotatingWriter(path, 1, 2)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	rw.maxBytes = 50
	defer rw.Close()

	// Force several rotations, pruning synchronously after each so the
	// backup count is deterministic.
	data := strings.Repeat("y", 40)
	for i := 0; i < 5; i++ {
		rw.Write([]byte(data))
		rw.prune()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}

	rotatedCount := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "events-") {
			rotatedCount++
		}
	}
	if rotatedCount > 2 {
		t.Errorf("expected at most 2 backups, got %d", rotatedCount)
	}
}
