package resume

import (
	"path/filepath"
	"strings"
	"testing"
)

func pathForTest(dir string) func(string) string {
	return func(key string) string {
		return filepath.Join(dir, strings.ReplaceAll(key, "/", "_")+".checkpoint")
	}
}

func TestFileStoreSaveLoadDelete(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(pathForTest(dir))

	tok := New("upload-abc", MinUploadPartSize, 4)
	if err := store.Save("bucket/key", tok); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load("bucket/key")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != tok {
		t.Errorf("Load() = %+v, want %+v", got, tok)
	}

	if err := store.Delete("bucket/key"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Load("bucket/key"); err == nil {
		t.Fatal("expected an error loading a deleted checkpoint")
	}
}

func TestFileStoreDeleteMissingIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(pathForTest(dir))
	if err := store.Delete("never-existed"); err != nil {
		t.Errorf("Delete of a missing checkpoint should be a no-op, got: %v", err)
	}
}
