package cache

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/any-hub/doc-hub/internal/logging"
)

func TestStorePutAndGet(t *testing.T) {
	store, root := newTestStore(t)
	payload := []byte("<html>rails</html>")

	if _, err := store.Put(context.Background(), "/gems/rails/", bytes.NewReader(payload)); err != nil {
		t.Fatalf("put error: %v", err)
	}

	result, err := store.Get(context.Background(), "gems/rails")
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	defer result.Reader.Close()

	body, err := io.ReadAll(result.Reader)
	if err != nil {
		t.Fatalf("read cached body error: %v", err)
	}
	if !bytes.Equal(body, payload) {
		t.Fatalf("cached payload mismatch: %s", string(body))
	}
	if result.Entry.SizeBytes != int64(len(payload)) {
		t.Fatalf("size mismatch: %d", result.Entry.SizeBytes)
	}

	// 静态层直接读取磁盘文件时也应得到完全相同的内容。
	onDisk, err := os.ReadFile(filepath.Join(root, "gems", "rails.html"))
	if err != nil {
		t.Fatalf("expected file at derived path: %v", err)
	}
	if !bytes.Equal(onDisk, payload) {
		t.Fatalf("static read mismatch: %s", string(onDisk))
	}
}

func TestStoreGetMissing(t *testing.T) {
	store, root := newTestStore(t)
	_, err := store.Get(context.Background(), "/gems/missing")
	if err == nil || err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "gems", "missing.html")); !os.IsNotExist(err) {
		t.Fatalf("no file should exist without a prior put: %v", err)
	}
}

func TestStoreRemove(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.Put(context.Background(), "/github/acme/widget", bytes.NewReader([]byte("data"))); err != nil {
		t.Fatalf("put error: %v", err)
	}
	if err := store.Remove(context.Background(), "/github/acme/widget"); err != nil {
		t.Fatalf("remove error: %v", err)
	}
	if _, err := store.Get(context.Background(), "/github/acme/widget"); err == nil || err != ErrNotFound {
		t.Fatalf("expected not found after remove, got %v", err)
	}
}

func TestStoreIgnoresDirectories(t *testing.T) {
	store, _ := newTestStore(t)

	filePath, err := store.Path("/gems/dir")
	if err != nil {
		t.Fatalf("path error: %v", err)
	}
	if err := os.MkdirAll(filePath, 0o755); err != nil {
		t.Fatalf("mkdir error: %v", err)
	}

	if _, err := store.Get(context.Background(), "/gems/dir"); err == nil || err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for directory, got %v", err)
	}
}

func TestStoreLeavesNoTempFiles(t *testing.T) {
	store, root := newTestStore(t)
	for i := 0; i < 3; i++ {
		if _, err := store.Put(context.Background(), "/gems", bytes.NewReader([]byte("index"))); err != nil {
			t.Fatalf("put error: %v", err)
		}
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("readdir error: %v", err)
	}
	for _, entry := range entries {
		if entry.Name() != "gems.html" {
			t.Fatalf("unexpected leftover file %s", entry.Name())
		}
	}
}

func TestNormalizeKey(t *testing.T) {
	cases := map[string]string{
		"/gems/rails/":       "gems/rails",
		"gems":               "gems",
		"/":                  "index",
		"":                   "index",
		"/github/../../etc/": "etc",
		"/gems//rails":       "gems/rails",
	}
	for input, want := range cases {
		if got := NormalizeKey(input); got != want {
			t.Fatalf("NormalizeKey(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestPublisherDisabledWritesNothing(t *testing.T) {
	store, root := newTestStore(t)
	publisher := NewPublisher(store, false, logging.Discard(), nil)

	out := publisher.Publish(context.Background(), "/gems/rails", []byte("body"))
	if string(out) != "body" {
		t.Fatalf("publisher must return the body unchanged")
	}
	entries, _ := os.ReadDir(root)
	if len(entries) != 0 {
		t.Fatalf("disabled publisher must not write, found %d entries", len(entries))
	}
}

func TestPublisherSwallowsWriteErrors(t *testing.T) {
	store, root := newTestStore(t)
	// 以普通文件占据父目录位置，使 MkdirAll 失败。
	if err := os.WriteFile(filepath.Join(root, "gems"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	publisher := NewPublisher(store, true, logging.Discard(), nil)

	out := publisher.Publish(context.Background(), "/gems/rails", []byte("body"))
	if string(out) != "body" {
		t.Fatalf("write failure must not alter the response body")
	}
}

func TestPublisherEnabledWrites(t *testing.T) {
	store, root := newTestStore(t)
	publisher := NewPublisher(store, true, logging.Discard(), nil)
	publisher.Publish(context.Background(), "/github", []byte("index"))

	body, err := os.ReadFile(filepath.Join(root, "github.html"))
	if err != nil || string(body) != "index" {
		t.Fatalf("expected published file, got %q (%v)", string(body), err)
	}
}

// newTestStore returns a Store backed by a temporary directory.
func newTestStore(t *testing.T) (Store, string) {
	t.Helper()
	root := t.TempDir()
	store, err := NewStore(root)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store, root
}
