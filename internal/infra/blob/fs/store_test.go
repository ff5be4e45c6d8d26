package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"opsreport/internal/blob/core"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestStorePutGetHeadList(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if store.Driver() != core.DriverFilesystem {
		t.Fatalf("unexpected driver %s", store.Driver())
	}
	info, err := store.Put(ctx, "approvals/2026/10/a.json", bytes.NewReader([]byte(`{"id":"a"}`)), core.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"status": "APPROVED"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "approvals/2026/10/a.json" || info.Size != 10 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "approvals/2026/10/a.json", bytes.NewReader([]byte("x")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	head, err := store.Head(ctx, "approvals/2026/10/a.json")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.Metadata["status"] != "APPROVED" || head.ContentType != "application/json" {
		t.Fatalf("metadata not preserved: %+v", head)
	}
	got, rc, err := store.Get(ctx, "approvals/2026/10/a.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	if err := rc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if string(body) != `{"id":"a"}` || got.ETag != head.ETag {
		t.Fatalf("unexpected get result %s %+v", body, got)
	}

	if _, err := store.Put(ctx, "approvals/2026/11/b.json", bytes.NewReader([]byte("{}")), core.PutOptions{}); err != nil {
		t.Fatalf("put second: %v", err)
	}
	list, err := store.List(ctx, "approvals/2026/10/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Key != "approvals/2026/10/a.json" {
		t.Fatalf("unexpected list %+v", list)
	}
	all, err := store.List(ctx, "")
	if err != nil || len(all) != 2 || all[0].Key > all[1].Key {
		t.Fatalf("expected two ordered entries, got %+v (%v)", all, err)
	}

	if _, err := store.Head(ctx, "approvals/2026/10/missing.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := store.Get(ctx, "approvals/2026/10/missing.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from get, got %v", err)
	}
}

func TestStoreRejectsBadKeys(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	for _, key := range []string{"", "  ", "../escape.txt", "/abs", "a/../../b", "x.meta"} {
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("x")), core.PutOptions{}); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
}

func TestStoreCancelledPut(t *testing.T) {
	store := newTempStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Put(ctx, "k", bytes.NewReader([]byte("x")), core.PutOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewDefaultsAndCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "root")
	store, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if store.Root() != root {
		t.Fatalf("unexpected root %s", store.Root())
	}
	if fi, err := os.Stat(root); err != nil || !fi.IsDir() {
		t.Fatalf("expected root directory created: %v", err)
	}
}

func TestListSurfacesCorruptSidecar(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if err := os.WriteFile(filepath.Join(store.Root(), "bad.meta"), []byte("{"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := store.List(ctx, ""); err == nil {
		t.Fatalf("expected decode error")
	}
}
