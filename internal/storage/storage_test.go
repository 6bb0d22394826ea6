package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
)

func TestFileStoreSaveOpenRemove(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	ctx := context.Background()

	if err := fs.Save(ctx, "doc.pdf", strings.NewReader("%PDF-1.4 data"), 13, "application/pdf"); err != nil {
		t.Fatalf("save: %v", err)
	}
	rc, err := fs.Open(ctx, "doc.pdf")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "%PDF-1.4 data" {
		t.Fatalf("content mismatch: %q", data)
	}

	if err := fs.Remove(ctx, "doc.pdf"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := fs.Open(ctx, "doc.pdf"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist after remove, got %v", err)
	}
	// Removing an absent blob is fine.
	if err := fs.Remove(ctx, "doc.pdf"); err != nil {
		t.Fatalf("remove absent: %v", err)
	}
}

func TestFileStoreNeutralizesPathSegments(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	ctx := context.Background()
	if err := fs.Save(ctx, "../escape.pdf", strings.NewReader("x"), 1, "application/pdf"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(dir + "/escape.pdf"); err != nil {
		t.Fatalf("file not confined to base dir: %v", err)
	}
}

func TestNewStoredNameKeepsOnlyExtension(t *testing.T) {
	name := NewStoredName("../../etc/PASSWD.PDF")
	if !strings.HasSuffix(name, ".pdf") {
		t.Fatalf("extension not preserved lowercase: %q", name)
	}
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		t.Fatalf("stored name carries path data: %q", name)
	}
	if name == NewStoredName("b.pdf") {
		t.Fatalf("stored names must be unique")
	}
}
