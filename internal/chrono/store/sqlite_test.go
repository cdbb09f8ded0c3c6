package store

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chronograph.db")

	s, err := NewSQLite(ctx, path)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	seedNode(t, s, "n1", 0)
	if err := s.Close(ctx); err != nil {
		t.Fatalf("closing store: %v", err)
	}

	reopened, err := NewSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopening store: %v", err)
	}
	t.Cleanup(func() { reopened.Close(ctx) })

	open, err := reopened.OpenNodeVersion(ctx, "n1")
	if err != nil {
		t.Fatalf("reading after reopen: %v", err)
	}
	if open.VersionID != "n1-v1" {
		t.Errorf("expected n1-v1 after reopen, got %s", open.VersionID)
	}
	if got := open.Content["statement"]; got != "n1" {
		t.Errorf("expected statement to survive reopen, got %v", got)
	}
}
