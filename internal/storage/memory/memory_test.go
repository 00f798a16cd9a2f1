package memory

import (
	"context"
	"testing"

	"github.com/nocodeci/wozif-gateway/internal/storage"
)

func TestReadWriteDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, ok, _ := s.Read(ctx, "missing"); ok {
		t.Fatal("expected miss for unknown key")
	}

	if err := s.Write(ctx, "k", "v1"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Write(ctx, "k", "v2"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	v, ok, err := s.Read(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("read: ok=%v err=%v", ok, err)
	}
	if v != "v2" {
		t.Fatalf("read = %q, want v2", v)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.Read(ctx, "k"); ok {
		t.Fatal("expected miss after delete")
	}
	// Deleting an absent key is a no-op.
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("double delete: %v", err)
	}
}

func TestPrefixKeysAndClear(t *testing.T) {
	ctx := context.Background()
	s := New()

	hash := "deadbeef"
	prefix := storage.SessionPrefix(hash)
	_ = s.Write(ctx, storage.TokenKey(hash), "tok")
	_ = s.Write(ctx, storage.UserKey(hash), `{"id":"u1"}`)
	_ = s.Write(ctx, storage.SelectedStoreKey(hash), "store-1")
	_ = s.Write(ctx, storage.StoreListKey(hash), "[]")
	_ = s.Write(ctx, storage.TokenKey("other"), "tok2")

	keys, err := s.Keys(ctx, prefix)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 4 {
		t.Fatalf("got %d keys under session prefix, want 4: %v", len(keys), keys)
	}

	if err := s.Clear(ctx, prefix); err != nil {
		t.Fatalf("clear: %v", err)
	}
	keys, _ = s.Keys(ctx, prefix)
	if len(keys) != 0 {
		t.Fatalf("expected session swept, still have %v", keys)
	}

	// Other sessions untouched.
	if _, ok, _ := s.Read(ctx, storage.TokenKey("other")); !ok {
		t.Fatal("clear must be scoped to its prefix")
	}
}
