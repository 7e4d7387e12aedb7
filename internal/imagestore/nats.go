package imagestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

const contentTypeHeader = "Content-Type"

// JetStreamBucket keeps images in a NATS JetStream object store bucket
type JetStreamBucket struct {
	store  jetstream.ObjectStore
	url    URLFunc
	logger *zap.Logger
}

// NewJetStreamBucket opens the named object store bucket, creating it if needed.
func NewJetStreamBucket(ctx context.Context, nc *nats.Conn, bucket string, url URLFunc, logger *zap.Logger) (*JetStreamBucket, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	store, err := js.ObjectStore(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		store, err = js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
			Bucket:      bucket,
			Description: "Uploaded invite images",
		})
		if err == nil {
			logger.Info("Created image bucket", zap.String("bucket", bucket))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open object store %q: %w", bucket, err)
	}

	return &JetStreamBucket{store: store, url: url, logger: logger}, nil
}

func (b *JetStreamBucket) Store(ctx context.Context, data []byte, contentType, p string) (string, error) {
	p, err := CleanPath(p)
	if err != nil {
		return "", err
	}

	meta := jetstream.ObjectMeta{
		Name:    p,
		Headers: nats.Header{},
	}
	meta.Headers.Set(contentTypeHeader, contentType)

	if _, err := b.store.Put(ctx, meta, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("put %s: %w", p, err)
	}
	return b.url(p), nil
}

func (b *JetStreamBucket) Delete(ctx context.Context, paths []string) error {
	var errs []error
	for _, p := range paths {
		err := b.store.Delete(ctx, p)
		if err != nil && !errors.Is(err, jetstream.ErrObjectNotFound) {
			errs = append(errs, fmt.Errorf("delete %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

func (b *JetStreamBucket) List(ctx context.Context, prefix string) ([]string, error) {
	infos, err := b.store.List(ctx)
	if errors.Is(err, jetstream.ErrNoObjectsFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}

	var paths []string
	for _, info := range infos {
		if !info.Deleted && strings.HasPrefix(info.Name, prefix) {
			paths = append(paths, info.Name)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func (b *JetStreamBucket) Open(ctx context.Context, p string) (*Object, error) {
	p, err := CleanPath(p)
	if err != nil {
		return nil, err
	}

	res, err := b.store.Get(ctx, p)
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", p, err)
	}

	info, err := res.Info()
	if err != nil {
		res.Close()
		return nil, fmt.Errorf("object info %s: %w", p, err)
	}

	obj := &Object{
		ReadCloser: res,
		Size:       int64(info.Size),
		ModTime:    info.ModTime,
	}
	if info.Headers != nil {
		obj.ContentType = info.Headers.Get(contentTypeHeader)
	}
	if obj.ContentType == "" {
		obj.ContentType = "application/octet-stream"
	}
	return obj, nil
}

// Ping checks that the bucket is reachable.
func (b *JetStreamBucket) Ping(ctx context.Context) error {
	_, err := b.store.Status(ctx)
	return err
}
