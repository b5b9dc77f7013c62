package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/palletdock/internal/config"
)

func TestLocalStorePutGet(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new local store failed: %v", err)
	}
	key := ManifestKey("PALLET-20250601-001")
	if err := store.Put(context.Background(), key, strings.NewReader("%PDF-1.3"), "application/pdf"); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	ok, err := store.Exists(context.Background(), key)
	if err != nil || !ok {
		t.Fatalf("expected object to exist, ok=%v err=%v", ok, err)
	}
	reader, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	defer reader.Close()
	body, _ := io.ReadAll(reader)
	if string(body) != "%PDF-1.3" {
		t.Fatalf("unexpected body %q", string(body))
	}
}

func TestLocalStoreMissingObject(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new local store failed: %v", err)
	}
	if _, err := store.Get(context.Background(), "manifests/none.pdf"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
	ok, err := store.Exists(context.Background(), "manifests/none.pdf")
	if err != nil || ok {
		t.Fatalf("expected missing object, ok=%v err=%v", ok, err)
	}
}

func TestNormalizeKeyRejectsTraversal(t *testing.T) {
	for _, key := range []string{"", "..", "../etc/passwd", "a/../../b"} {
		if _, err := NormalizeKey(key); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
	got, err := NormalizeKey("/labels//P1/./A.pdf")
	if err != nil || got != "labels/P1/A.pdf" {
		t.Fatalf("unexpected normalized key %q err=%v", got, err)
	}
}

func TestArtifactKeys(t *testing.T) {
	if got := LabelKey("PALLET-20250601-001", "ABC/123"); got != "labels/PALLET-20250601-001/ABC_123.pdf" {
		t.Fatalf("unexpected label key %s", got)
	}
	if got := ManifestKey(" "); got != "manifests/_.pdf" {
		t.Fatalf("unexpected manifest key %s", got)
	}
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	if _, err := New(context.Background(), config.StorageConfig{Driver: "ftp"}); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	if _, err := New(context.Background(), config.StorageConfig{Driver: "s3"}); err == nil {
		t.Fatalf("expected missing bucket error")
	}
}
