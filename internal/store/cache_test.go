package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Gresham24/invite-ai/internal/models"
)

type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	failGet bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}}
}

func (c *memoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return nil, errors.New("connection refused")
	}
	b, ok := c.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return b, nil
}

func (c *memoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *memoryCache) Del(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

func (c *memoryCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

type countingStore struct {
	Store
	loads atomic.Int32
}

func (s *countingStore) Load(ctx context.Context, id string) (*models.Invite, error) {
	s.loads.Add(1)
	return s.Store.Load(ctx, id)
}

func TestCachedStoreReadThrough(t *testing.T) {
	backend := &countingStore{Store: openTempStore(t)}
	cache := newMemoryCache()
	s := NewCachedStore(backend, cache, time.Minute, zap.NewNop())
	ctx := context.Background()

	if _, err := s.Save(ctx, newInvite("inv-1", "", "Party")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		inv, err := s.Load(ctx, "inv-1")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if inv.Artifact.SanitizedCode != "function InviteComponent() {}" || inv.Artifact.Seal != "seal" {
			t.Errorf("Cached invite lost hidden fields: %+v", inv.Artifact)
		}
	}
	if n := backend.loads.Load(); n != 1 {
		t.Errorf("Expected one backend load, got %d", n)
	}
	if !cache.has("invite:inv-1") {
		t.Error("Expected cache entry")
	}
}

func TestCachedStoreInvalidation(t *testing.T) {
	backend := &countingStore{Store: openTempStore(t)}
	cache := newMemoryCache()
	s := NewCachedStore(backend, cache, time.Minute, zap.NewNop())
	ctx := context.Background()

	if _, err := s.Save(ctx, newInvite("inv-1", "", "First")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := s.Load(ctx, "inv-1"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if _, err := s.Save(ctx, newInvite("inv-1", "", "Second")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	inv, err := s.Load(ctx, "inv-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if inv.Inputs.Event.Title != "Second" {
		t.Errorf("Save should invalidate the cache, got %q", inv.Inputs.Event.Title)
	}

	if err := s.SoftDelete(ctx, "inv-1"); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}
	if _, err := s.Load(ctx, "inv-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Deleted invite must not be served from cache, got %v", err)
	}
}

func TestCachedStoreViewsInvalidate(t *testing.T) {
	backend := &countingStore{Store: openTempStore(t)}
	cache := newMemoryCache()
	s := NewCachedStore(backend, cache, time.Minute, zap.NewNop())
	ctx := context.Background()

	if _, err := s.Save(ctx, newInvite("inv-1", "", "Party")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := s.Load(ctx, "inv-1"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := s.IncrementViews(ctx, "inv-1"); err != nil {
		t.Fatalf("IncrementViews failed: %v", err)
	}
	if cache.has("invite:inv-1") {
		t.Error("A view should drop the cached copy")
	}

	inv, err := s.Load(ctx, "inv-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if inv.ViewCount != 1 {
		t.Errorf("Expected the new view count, got %d", inv.ViewCount)
	}
}

func TestCachedStoreCollapsesConcurrentMisses(t *testing.T) {
	backend := &countingStore{Store: openTempStore(t)}
	s := NewCachedStore(backend, newMemoryCache(), time.Minute, zap.NewNop())
	ctx := context.Background()

	if _, err := s.Save(ctx, newInvite("inv-1", "", "Party")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Load(ctx, "inv-1"); err != nil {
				t.Errorf("Load failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := backend.loads.Load(); n < 1 || n > 20 {
		t.Errorf("Unexpected backend load count %d", n)
	}
}

func TestCachedStoreSurvivesCacheFailure(t *testing.T) {
	backend := &countingStore{Store: openTempStore(t)}
	cache := newMemoryCache()
	cache.failGet = true
	s := NewCachedStore(backend, cache, time.Minute, zap.NewNop())
	ctx := context.Background()

	if _, err := s.Save(ctx, newInvite("inv-1", "", "Party")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := s.Load(ctx, "inv-1"); err != nil {
		t.Fatalf("Load should fall back to the store, got %v", err)
	}
}
