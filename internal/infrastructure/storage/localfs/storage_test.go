package localfs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveOpenResolve(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := s.Save(context.Background(), "a_invoice.txt", strings.NewReader("hello")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	rc, err := s.Open(context.Background(), "a_invoice.txt")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	raw, _ := io.ReadAll(rc)
	if string(raw) != "hello" {
		t.Fatalf("unexpected content %q", raw)
	}

	if got := s.Resolve("a_invoice.txt"); got != filepath.Join(dir, "a_invoice.txt") {
		t.Fatalf("Resolve() = %q", got)
	}
	if got := s.Resolve("/abs/file.pdf"); got != "/abs/file.pdf" {
		t.Fatalf("Resolve(abs) = %q", got)
	}
}

func TestRejectsTraversalKeys(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, key := range []string{"", "..", "../escape", "dir/file"} {
		if err := s.Save(context.Background(), key, strings.NewReader("x")); !errors.Is(err, errBadKey) {
			t.Fatalf("Save(%q) error = %v, want errBadKey", key, err)
		}
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestFailedSaveLeavesNothingBehind(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Save(context.Background(), "b_invoice.pdf", failingReader{}); err == nil {
		t.Fatal("expected write error")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty storage root, found %d entries", len(entries))
	}
}
