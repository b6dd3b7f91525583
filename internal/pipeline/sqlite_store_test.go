package pipeline

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "cache", "stages.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}

	if err := store.Put(ctx, "key1", []byte(`{"result":"alpha"}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	payload, ok, err := store.Get(ctx, "key1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(payload) != `{"result":"alpha"}` {
		t.Errorf("payload = %s", payload)
	}
}

func TestSQLiteStore_PutReplaces(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_ = store.Put(ctx, "key", []byte("old"))
	if err := store.Put(ctx, "key", []byte("new")); err != nil {
		t.Fatalf("replace: %v", err)
	}
	payload, _, _ := store.Get(ctx, "key")
	if string(payload) != "new" {
		t.Errorf("payload = %s, want last write", payload)
	}
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stages.db")
	ctx := context.Background()

	store, err := OpenSQLiteStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = store.Put(ctx, "persist", []byte("payload"))
	_ = store.Close()

	reopened, err := OpenSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	payload, ok, err := reopened.Get(ctx, "persist")
	if err != nil || !ok || string(payload) != "payload" {
		t.Errorf("entry lost across reopen: %q ok=%v err=%v", payload, ok, err)
	}
}

func TestOpenSQLiteStore_RejectsBadPaths(t *testing.T) {
	if _, err := OpenSQLiteStore(""); err == nil {
		t.Error("empty path should fail")
	}
	if _, err := OpenSQLiteStore(t.TempDir()); err == nil {
		t.Error("directory path should fail")
	}
}

func TestStageCache_FallsThroughToStore(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	_ = store.Put(ctx, "warm", []byte("from-disk"))

	c := NewStageCache(4, store)
	payload, ok, err := c.Get(ctx, "warm")
	if err != nil || !ok || string(payload) != "from-disk" {
		t.Fatalf("store fallthrough: %q ok=%v err=%v", payload, ok, err)
	}

	// The entry is promoted to memory on the way back.
	if c.Len() != 1 {
		t.Errorf("len = %d, want promoted entry in memory", c.Len())
	}
}
