package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestSaveAndLoadSessionContext(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	session := Context{
		AccountID:        "acc-1",
		DisplayName:      "hana",
		IsAdmin:          true,
		Impersonating:    true,
		AdminAccountID:   "admin-1",
		AdminDisplayName: "adminkaho1020",
		DocumentName:     "diary.txt",
		DocumentText:     "今日は晴れ",
	}

	if err := store.Save(ctx, HashToken("tok"), session, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(ctx, HashToken("tok"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != session {
		t.Fatalf("round trip mismatch: %+v vs %+v", loaded, session)
	}
}

func TestLoadExpiredSession(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "hash", Context{AccountID: "acc-1"}, time.Millisecond); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	s.FastForward(2 * time.Millisecond)

	if _, err := store.Load(ctx, "hash"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession for expired session, got %v", err)
	}
}

func TestLoadMissingSession(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	if _, err := store.Load(context.Background(), "never-saved"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestDeleteSession(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "hash", Context{AccountID: "acc-1"}, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Delete(ctx, "hash"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Load(ctx, "hash"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession after delete, got %v", err)
	}
}

func TestHashTokenIsStableAndOpaque(t *testing.T) {
	if HashToken("tok") != HashToken("tok") {
		t.Fatalf("expected stable hash")
	}
	if HashToken("tok") == "tok" {
		t.Fatalf("raw token must not be the storage key")
	}
	if HashToken("tok") == HashToken("other") {
		t.Fatalf("distinct tokens must hash distinctly")
	}
}
