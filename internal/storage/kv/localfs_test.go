// internal/storage/kv/localfs_test.go
package kv

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalFS_ImplementsStore(t *testing.T) {
	var _ Store = (*LocalFS)(nil)
}

func TestLocalFS_SetGet(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewLocalFS(dir)
	if err != nil {
		t.Fatalf("NewLocalFS: %v", err)
	}

	ctx := context.Background()

	if err := fs.Set(ctx, "token", "abc123"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok, err := fs.Get(ctx, "token")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected key to be present")
	}
	if got != "abc123" {
		t.Errorf("got %q, want %q", got, "abc123")
	}
}

func TestLocalFS_Overwrite(t *testing.T) {
	fs, _ := NewLocalFS(t.TempDir())
	ctx := context.Background()

	fs.Set(ctx, "username", "alice")
	fs.Set(ctx, "username", "bob")

	got, _, _ := fs.Get(ctx, "username")
	if got != "bob" {
		t.Errorf("got %q, want bob", got)
	}
}

func TestLocalFS_GetMissing(t *testing.T) {
	fs, _ := NewLocalFS(t.TempDir())

	got, ok, err := fs.Get(context.Background(), "token")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok || got != "" {
		t.Errorf("expected missing key, got %q ok=%v", got, ok)
	}
}

func TestLocalFS_Remove(t *testing.T) {
	dir := t.TempDir()
	fs, _ := NewLocalFS(dir)
	ctx := context.Background()

	fs.Set(ctx, "token", "abc123")
	if err := fs.Remove(ctx, "token"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if _, ok, _ := fs.Get(ctx, "token"); ok {
		t.Error("expected key to be removed")
	}

	// Removing again is not an error
	if err := fs.Remove(ctx, "token"); err != nil {
		t.Errorf("second Remove: %v", err)
	}
}

func TestLocalFS_FilePermissions(t *testing.T) {
	dir := t.TempDir()
	fs, _ := NewLocalFS(dir)

	fs.Set(context.Background(), "token", "secret")

	info, err := os.Stat(filepath.Join(dir, "token"))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected 0600, got %o", perm)
	}
}

func TestLocalFS_InvalidKey(t *testing.T) {
	fs, _ := NewLocalFS(t.TempDir())
	ctx := context.Background()

	for _, key := range []string{"", "..", "a/b", `a\b`} {
		if err := fs.Set(ctx, key, "v"); err == nil {
			t.Errorf("expected error for key %q", key)
		}
	}
}

func TestLocalFS_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, _ := NewLocalFS(dir)
	first.Set(ctx, "token", "abc123")

	second, _ := NewLocalFS(dir)
	got, ok, _ := second.Get(ctx, "token")
	if !ok || got != "abc123" {
		t.Errorf("expected value to survive reopen, got %q ok=%v", got, ok)
	}
}
