package tool

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNextAvailablePath(t *testing.T) {
	dir := t.TempDir()
	if got := NextAvailablePath(dir, "mix.wav"); got != filepath.Join(dir, "mix.wav") {
		t.Fatalf("first path = %s", got)
	}
	for _, name := range []string{"mix.wav", "mix-2.wav"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if got := NextAvailablePath(dir, "mix.wav"); got != filepath.Join(dir, "mix-3.wav") {
		t.Errorf("next path = %s, want mix-3.wav", got)
	}
}

func TestSaveReaderToNeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	first, err := SaveReaderTo(context.Background(), dir, "mix.wav", strings.NewReader("one"))
	if err != nil {
		t.Fatalf("first save: %v", err)
	}
	second, err := SaveReaderTo(context.Background(), dir, "mix.wav", strings.NewReader("two"))
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if first == second {
		t.Fatalf("both saves wrote %s", first)
	}
	data, _ := os.ReadFile(first)
	if string(data) != "one" {
		t.Errorf("first file overwritten: %q", data)
	}
}

func TestCopyWithContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var sb strings.Builder
	if _, err := CopyWithContext(ctx, &sb, strings.NewReader("payload")); err == nil {
		t.Fatal("expected context error")
	}
	if sb.Len() != 0 {
		t.Errorf("wrote %d bytes after cancel", sb.Len())
	}
}
