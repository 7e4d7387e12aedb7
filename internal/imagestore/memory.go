package imagestore

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryObject struct {
	data        []byte
	contentType string
	modTime     time.Time
}

// MemoryBucket keeps images in process memory. It backs development runs
// without NATS and tests.
type MemoryBucket struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	url     URLFunc
}

// NewMemoryBucket creates an empty in-memory bucket.
func NewMemoryBucket(url URLFunc) *MemoryBucket {
	return &MemoryBucket{objects: map[string]memoryObject{}, url: url}
}

func (b *MemoryBucket) Store(ctx context.Context, data []byte, contentType, p string) (string, error) {
	p, err := CleanPath(p)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b.mu.Lock()
	b.objects[p] = memoryObject{
		data:        bytes.Clone(data),
		contentType: contentType,
		modTime:     time.Now().UTC(),
	}
	b.mu.Unlock()
	return b.url(p), nil
}

func (b *MemoryBucket) Delete(ctx context.Context, paths []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range paths {
		delete(b.objects, p)
	}
	return nil
}

func (b *MemoryBucket) List(ctx context.Context, prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var paths []string
	for p := range b.objects {
		if strings.HasPrefix(p, prefix) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func (b *MemoryBucket) Open(ctx context.Context, p string) (*Object, error) {
	p, err := CleanPath(p)
	if err != nil {
		return nil, err
	}
	b.mu.RLock()
	obj, ok := b.objects[p]
	b.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return &Object{
		ReadCloser:  io.NopCloser(bytes.NewReader(obj.data)),
		ContentType: obj.contentType,
		Size:        int64(len(obj.data)),
		ModTime:     obj.modTime,
	}, nil
}

// Ping always succeeds.
func (b *MemoryBucket) Ping(ctx context.Context) error {
	return nil
}

// Len reports how many objects are stored.
func (b *MemoryBucket) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}
