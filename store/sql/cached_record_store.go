package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-webhooks/core"
)

const recordCacheKeyPrefix = "go-webhooks::ingestion_record::v1"

// CachedRecordStore layers a read cache over external-UUID lookups, the hot
// path for replay and status queries. Writes go to the base store and drop the
// cached entry so readers never observe a stale status transition.
type CachedRecordStore struct {
	base  core.RecordStore
	cache repositorycache.CacheService
}

func NewCachedRecordStore(base core.RecordStore, cacheService repositorycache.CacheService) (*CachedRecordStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base record store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: record cache service is required")
	}
	return &CachedRecordStore{base: base, cache: cacheService}, nil
}

// RecordCacheKey returns the deterministic cache key contract for
// external-UUID reads: go-webhooks::ingestion_record::v1::<external_uuid>
// with the identifier URL-path escaped.
func RecordCacheKey(externalUUID string) (string, error) {
	trimmed := strings.TrimSpace(externalUUID)
	if trimmed == "" {
		return "", fmt.Errorf("sqlstore: external uuid is required")
	}
	return recordCacheKeyPrefix + "::" + url.PathEscape(trimmed), nil
}

func (s *CachedRecordStore) Create(ctx context.Context, in core.CreateRecordInput) (core.IngestionRecord, error) {
	if s == nil || s.base == nil {
		return core.IngestionRecord{}, fmt.Errorf("sqlstore: cached record store is not configured")
	}
	return s.base.Create(ctx, in)
}

func (s *CachedRecordStore) Get(ctx context.Context, id string) (core.IngestionRecord, error) {
	if s == nil || s.base == nil {
		return core.IngestionRecord{}, fmt.Errorf("sqlstore: cached record store is not configured")
	}
	return s.base.Get(ctx, id)
}

func (s *CachedRecordStore) GetByExternalUUID(ctx context.Context, externalUUID string) (core.IngestionRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.IngestionRecord{}, fmt.Errorf("sqlstore: cached record store is not configured")
	}
	cacheKey, err := RecordCacheKey(externalUUID)
	if err != nil {
		return core.IngestionRecord{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.IngestionRecord, error) {
		return s.base.GetByExternalUUID(ctx, externalUUID)
	})
}

func (s *CachedRecordStore) List(ctx context.Context, filter core.RecordFilter) ([]core.IngestionRecord, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached record store is not configured")
	}
	return s.base.List(ctx, filter)
}

func (s *CachedRecordStore) BeginProcessing(ctx context.Context, id string) (core.IngestionRecord, error) {
	return s.writeThrough(ctx, func(ctx context.Context) (core.IngestionRecord, error) {
		return s.base.BeginProcessing(ctx, id)
	})
}

func (s *CachedRecordStore) CompleteProcessing(ctx context.Context, id string) (core.IngestionRecord, error) {
	return s.writeThrough(ctx, func(ctx context.Context) (core.IngestionRecord, error) {
		return s.base.CompleteProcessing(ctx, id)
	})
}

func (s *CachedRecordStore) FailProcessing(ctx context.Context, id string, message string) (core.IngestionRecord, error) {
	return s.writeThrough(ctx, func(ctx context.Context) (core.IngestionRecord, error) {
		return s.base.FailProcessing(ctx, id, message)
	})
}

func (s *CachedRecordStore) ResetForRetry(ctx context.Context, id string) (core.IngestionRecord, error) {
	return s.writeThrough(ctx, func(ctx context.Context) (core.IngestionRecord, error) {
		return s.base.ResetForRetry(ctx, id)
	})
}

// Prune does not invalidate per-record keys; pruned entries age out with the
// cache TTL.
func (s *CachedRecordStore) Prune(ctx context.Context, filter core.PruneFilter) (int, error) {
	if s == nil || s.base == nil {
		return 0, fmt.Errorf("sqlstore: cached record store is not configured")
	}
	return s.base.Prune(ctx, filter)
}

func (s *CachedRecordStore) writeThrough(
	ctx context.Context,
	apply func(ctx context.Context) (core.IngestionRecord, error),
) (core.IngestionRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.IngestionRecord{}, fmt.Errorf("sqlstore: cached record store is not configured")
	}
	record, err := apply(ctx)
	if err != nil {
		return core.IngestionRecord{}, err
	}
	if strings.TrimSpace(record.ExternalUUID) != "" {
		cacheKey, keyErr := RecordCacheKey(record.ExternalUUID)
		if keyErr != nil {
			return core.IngestionRecord{}, keyErr
		}
		if err := s.cache.Delete(ctx, cacheKey); err != nil {
			return core.IngestionRecord{}, err
		}
	}
	return record, nil
}

var _ core.RecordStore = (*CachedRecordStore)(nil)
