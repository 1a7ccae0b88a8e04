//go:build integration

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/slack-exporter/internal/testutil"
)

func TestManager_Integration_SetAndGet(t *testing.T) {
	manager := NewManager(testutil.SetupRedis(t))
	ctx := context.Background()
	key := Key{Prefix: "T1", Method: "users.list"}

	entry, err := NewEntry(map[string]string{"U1": "ada"}, 5*time.Minute)
	if err != nil {
		t.Fatalf("NewEntry failed: %v", err)
	}
	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	retrieved, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(retrieved.Data) != string(entry.Data) {
		t.Errorf("Data mismatch: got %s, want %s", retrieved.Data, entry.Data)
	}

	var names map[string]string
	if err := retrieved.Decode(&names); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if names["U1"] != "ada" {
		t.Errorf("names[U1] = %q, want ada", names["U1"])
	}
}

func TestManager_Integration_Miss(t *testing.T) {
	manager := NewManager(testutil.SetupRedis(t))

	_, err := manager.Get(context.Background(), Key{Method: "users.list"})
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestManager_Integration_ExpiredNotStored(t *testing.T) {
	manager := NewManager(testutil.SetupRedis(t))
	ctx := context.Background()
	key := Key{Method: "users.list"}

	entry := &Entry{Data: []byte(`{}`), Expires: time.Now().Add(-time.Hour)}
	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss for expired entry, got %v", err)
	}
}

func TestManager_Integration_Delete(t *testing.T) {
	manager := NewManager(testutil.SetupRedis(t))
	ctx := context.Background()
	key := Key{Method: "users.list"}

	entry, _ := NewEntry([]string{"U1"}, 5*time.Minute)
	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := manager.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss after Delete, got %v", err)
	}
}
