package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Gresham24/invite-ai/internal/models"
)

// ErrCacheMiss is returned by Cache.Get for absent keys.
var ErrCacheMiss = errors.New("cache miss")

// Cache is the byte-level key/value cache in front of the store.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// RedisCache implements Cache with Redis
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps a Redis client
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return b, err
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Del(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

var tracer = otel.Tracer("invite-ai/store")

// CachedStore is a read-through cache over a Store. Concurrent misses for
// the same id share one backend load. Cache failures are logged and never
// fail the call.
type CachedStore struct {
	Store
	cache  Cache
	ttl    time.Duration
	group  singleflight.Group
	logger *zap.Logger
}

// NewCachedStore wraps next with cache.
func NewCachedStore(next Store, cache Cache, ttl time.Duration, logger *zap.Logger) *CachedStore {
	return &CachedStore{Store: next, cache: cache, ttl: ttl, logger: logger}
}

func cacheKey(id string) string {
	return "invite:" + id
}

// Load serves the invite from the cache when possible.
func (s *CachedStore) Load(ctx context.Context, id string) (*models.Invite, error) {
	ctx, span := tracer.Start(ctx, "store.Load")
	defer span.End()
	span.SetAttributes(attribute.String("invite.id", id))

	if b, err := s.cache.Get(ctx, cacheKey(id)); err == nil {
		if inv, err := decodeCacheEntry(b); err == nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return inv, nil
		}
		s.logger.Warn("Dropping unreadable cache entry", zap.String("invite_id", id))
	} else if !errors.Is(err, ErrCacheMiss) {
		s.logger.Warn("Cache read failed", zap.String("invite_id", id), zap.Error(err))
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	v, err, _ := s.group.Do(id, func() (any, error) {
		inv, err := s.Store.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		if b, err := encodeCacheEntry(inv); err == nil {
			if err := s.cache.Set(ctx, cacheKey(id), b, s.ttl); err != nil {
				s.logger.Warn("Cache write failed", zap.String("invite_id", id), zap.Error(err))
			}
		}
		return inv, nil
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}
	cp := *v.(*models.Invite)
	return &cp, nil
}

// Save writes through and invalidates the cached copy.
func (s *CachedStore) Save(ctx context.Context, inv *models.Invite) (*models.Invite, error) {
	ctx, span := tracer.Start(ctx, "store.Save")
	defer span.End()

	saved, err := s.Store.Save(ctx, inv)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	s.invalidate(ctx, inv.ID)
	return saved, nil
}

// SoftDelete deactivates the invite and invalidates the cached copy.
func (s *CachedStore) SoftDelete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "store.SoftDelete")
	defer span.End()

	if err := s.Store.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// IncrementViews counts the view and drops the cached copy so reads see the
// new count.
func (s *CachedStore) IncrementViews(ctx context.Context, id string) error {
	if err := s.Store.IncrementViews(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *CachedStore) invalidate(ctx context.Context, id string) {
	if err := s.cache.Del(ctx, cacheKey(id)); err != nil {
		s.logger.Warn("Cache invalidation failed", zap.String("invite_id", id), zap.Error(err))
	}
}

// cacheEntry carries every field of an invite, including the ones the API
// representation hides.
type cacheEntry struct {
	ID              string                   `json:"id"`
	Inputs          models.GenerationRequest `json:"inputs"`
	RawText         string                   `json:"raw_text"`
	SanitizedCode   string                   `json:"sanitized_code"`
	IsSafe          bool                     `json:"is_safe"`
	RejectionReason *string                  `json:"rejection_reason,omitempty"`
	Model           string                   `json:"model"`
	CodeHash        string                   `json:"code_hash"`
	Seal            string                   `json:"seal"`
	OwnerEmail      string                   `json:"owner_email"`
	ViewCount       int64                    `json:"view_count"`
	CreatedAt       time.Time                `json:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at"`
}

func encodeCacheEntry(inv *models.Invite) ([]byte, error) {
	b, err := json.Marshal(cacheEntry{
		ID:              inv.ID,
		Inputs:          inv.Inputs,
		RawText:         inv.Artifact.RawText,
		SanitizedCode:   inv.Artifact.SanitizedCode,
		IsSafe:          inv.Artifact.IsSafe,
		RejectionReason: inv.Artifact.RejectionReason,
		Model:           inv.Artifact.Model,
		CodeHash:        inv.Artifact.CodeHash,
		Seal:            inv.Artifact.Seal,
		OwnerEmail:      inv.OwnerEmail,
		ViewCount:       inv.ViewCount,
		CreatedAt:       inv.CreatedAt,
		UpdatedAt:       inv.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode cache entry: %w", err)
	}
	return b, nil
}

func decodeCacheEntry(b []byte) (*models.Invite, error) {
	var e cacheEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	return &models.Invite{
		ID:     e.ID,
		Inputs: e.Inputs,
		Artifact: models.GeneratedArtifact{
			RawText:         e.RawText,
			SanitizedCode:   e.SanitizedCode,
			IsSafe:          e.IsSafe,
			RejectionReason: e.RejectionReason,
			Model:           e.Model,
			CodeHash:        e.CodeHash,
			Seal:            e.Seal,
		},
		OwnerEmail: e.OwnerEmail,
		ViewCount:  e.ViewCount,
		IsActive:   true,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}, nil
}
