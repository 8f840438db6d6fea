package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/supportdesk/backend/internal/pipeline"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"How do I reset my password?", "how do i reset my password?"},
		{"  How do I   reset my password?  ", "how do i reset my password?"},
		{"HOW DO I RESET MY PASSWORD?", "how do i reset my password?"},
		{"How do I reset my password?!", "how do i reset my password?"},
		{"refund, please!!!", "refund please"},
		{"v2.1 release notes", "v2.1 release notes"},
	}

	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// Semantically identical queries must share a key; any change to client,
// query or version must change it.
func TestKeyComposition(t *testing.T) {
	base := Key("acme", "how do i reset my password?", 3)

	if got := Key("acme", Normalize("How do I   reset my password?!"), 3); got != base {
		t.Error("equivalent queries produced different keys")
	}
	if got := Key("globex", "how do i reset my password?", 3); got == base {
		t.Error("different clients share a key")
	}
	if got := Key("acme", "how do i reset my password?", 4); got == base {
		t.Error("different versions share a key")
	}
}

func TestMemoryPutGet(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()

	want := pipeline.Result{
		Reply:      "Go to Settings > Security and click Reset.",
		Intent:     "password_reset",
		Confidence: 0.82,
		Source:     pipeline.SourceDocument,
	}

	if err := m.Put(ctx, "acme", "how do i reset my password?", 1, want); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, found, err := m.Get(ctx, "acme", "how do i reset my password?", 1)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !found {
		t.Fatal("Get() miss after Put")
	}
	if got.Reply != want.Reply || got.Intent != want.Intent || got.Confidence != want.Confidence {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
}

// A version bump must orphan every entry written under the old version.
// Comparison is exact: neither older nor newer versions are served.
func TestMemoryVersionIsolation(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()

	result := pipeline.Result{Reply: "stale answer"}
	if err := m.Put(ctx, "acme", "query", 1, result); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if _, found, _ := m.Get(ctx, "acme", "query", 2); found {
		t.Error("entry written under version 1 served for version 2")
	}
	if _, found, _ := m.Get(ctx, "acme", "query", 1); !found {
		t.Error("entry lost for its own version")
	}
}

func TestMemoryClientIsolation(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()

	if err := m.Put(ctx, "acme", "query", 1, pipeline.Result{Reply: "acme answer"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if _, found, _ := m.Get(ctx, "globex", "query", 1); found {
		t.Error("entry leaked across clients")
	}
}

func TestMemoryTTLExpiry(t *testing.T) {
	m := NewMemory(10 * time.Millisecond)
	ctx := context.Background()

	if err := m.Put(ctx, "acme", "query", 1, pipeline.Result{Reply: "answer"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if _, found, _ := m.Get(ctx, "acme", "query", 1); !found {
		t.Fatal("fresh entry missing")
	}

	time.Sleep(20 * time.Millisecond)

	if _, found, _ := m.Get(ctx, "acme", "query", 1); found {
		t.Error("expired entry served")
	}
}

func TestMemoryConcurrentAccess(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			query := fmt.Sprintf("query %d", i%4)
			_ = m.Put(ctx, "acme", query, 1, pipeline.Result{Reply: query})
			_, _, _ = m.Get(ctx, "acme", query, 1)
		}(i)
	}
	wg.Wait()

	if m.Len() != 4 {
		t.Errorf("Len() = %d, want 4", m.Len())
	}
}

func TestMemoryEvictExpiredKeepsReplacedEntry(t *testing.T) {
	m := NewMemory(time.Hour)
	ctx := context.Background()

	key := Key("acme", "query", 1)
	stale := memoryEntry{
		result:    pipeline.Result{Reply: "stale"},
		expiresAt: time.Now().Add(-time.Minute),
	}
	m.mu.Lock()
	m.entries[key] = stale
	m.mu.Unlock()

	// A writer replaced the entry after the reader observed it expired.
	if err := m.Put(ctx, "acme", "query", 1, pipeline.Result{Reply: "fresh"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	m.evictExpired(key, stale)

	res, found, err := m.Get(ctx, "acme", "query", 1)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !found {
		t.Fatal("fresh entry evicted by a stale expiry check")
	}
	if res.Reply != "fresh" {
		t.Errorf("Reply = %q, want %q", res.Reply, "fresh")
	}
}

func TestMemoryEvictExpiredRemovesObservedEntry(t *testing.T) {
	m := NewMemory(time.Hour)

	key := Key("acme", "query", 1)
	stale := memoryEntry{
		result:    pipeline.Result{Reply: "stale"},
		expiresAt: time.Now().Add(-time.Minute),
	}
	m.mu.Lock()
	m.entries[key] = stale
	m.mu.Unlock()

	m.evictExpired(key, stale)

	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after eviction", m.Len())
	}
}
