package sqlstore

import (
	"context"
	"sync"
	"testing"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-webhooks/core"
)

type stubRecordStore struct {
	mu       sync.Mutex
	record   core.IngestionRecord
	getCalls int
}

func (s *stubRecordStore) Create(_ context.Context, in core.CreateRecordInput) (core.IngestionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = core.IngestionRecord{
		ID:           "1",
		ExternalUUID: core.NewExternalUUID(),
		Provider:     in.Provider,
		EventType:    in.EventType,
		Status:       core.DeliveryStatusPending,
	}
	return s.record, nil
}

func (s *stubRecordStore) Get(_ context.Context, _ string) (core.IngestionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record, nil
}

func (s *stubRecordStore) GetByExternalUUID(_ context.Context, _ string) (core.IngestionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	return s.record, nil
}

func (s *stubRecordStore) List(context.Context, core.RecordFilter) ([]core.IngestionRecord, error) {
	return nil, nil
}

func (s *stubRecordStore) BeginProcessing(_ context.Context, _ string) (core.IngestionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record.Status = core.DeliveryStatusProcessing
	s.record.Attempts++
	return s.record, nil
}

func (s *stubRecordStore) CompleteProcessing(_ context.Context, _ string) (core.IngestionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record.Status = core.DeliveryStatusProcessed
	return s.record, nil
}

func (s *stubRecordStore) FailProcessing(_ context.Context, _ string, message string) (core.IngestionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record.Status = core.DeliveryStatusFailed
	s.record.ErrorMessage = message
	return s.record, nil
}

func (s *stubRecordStore) ResetForRetry(_ context.Context, _ string) (core.IngestionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record.Status = core.DeliveryStatusPending
	s.record.ErrorMessage = ""
	return s.record, nil
}

func (s *stubRecordStore) Prune(context.Context, core.PruneFilter) (int, error) {
	return 0, nil
}

func newTestRecordCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}

func TestCachedRecordStore_GetByExternalUUID_MissFetchThenHit(t *testing.T) {
	ctx := context.Background()
	base := &stubRecordStore{}
	record, err := base.Create(ctx, core.CreateRecordInput{Provider: "stripe", EventType: "invoice.paid"})
	if err != nil {
		t.Fatalf("seed base store: %v", err)
	}

	store, err := NewCachedRecordStore(base, newTestRecordCacheService(t))
	if err != nil {
		t.Fatalf("new cached record store: %v", err)
	}

	if _, err := store.GetByExternalUUID(ctx, record.ExternalUUID); err != nil {
		t.Fatalf("first get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected first get to fetch base store once, got %d", base.getCalls)
	}

	cached, err := store.GetByExternalUUID(ctx, record.ExternalUUID)
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected second get to be cache hit, base get calls=%d", base.getCalls)
	}
	if cached.Provider != "stripe" {
		t.Fatalf("expected cached record payload, got %#v", cached)
	}
}

func TestCachedRecordStore_TransitionInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	base := &stubRecordStore{}
	record, err := base.Create(ctx, core.CreateRecordInput{Provider: "stripe", EventType: "invoice.paid"})
	if err != nil {
		t.Fatalf("seed base store: %v", err)
	}

	store, err := NewCachedRecordStore(base, newTestRecordCacheService(t))
	if err != nil {
		t.Fatalf("new cached record store: %v", err)
	}

	if _, err := store.GetByExternalUUID(ctx, record.ExternalUUID); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	if _, err := store.CompleteProcessing(ctx, record.ID); err != nil {
		t.Fatalf("complete processing: %v", err)
	}

	fresh, err := store.GetByExternalUUID(ctx, record.ExternalUUID)
	if err != nil {
		t.Fatalf("get after transition: %v", err)
	}
	if base.getCalls != 2 {
		t.Fatalf("expected transition to drop cached entry, base get calls=%d", base.getCalls)
	}
	if fresh.Status != core.DeliveryStatusProcessed {
		t.Fatalf("expected processed record after invalidation, got %s", fresh.Status)
	}
}

func TestRecordCacheKeyContract(t *testing.T) {
	key, err := RecordCacheKey("ext uuid/1")
	if err != nil {
		t.Fatalf("record cache key: %v", err)
	}
	want := "go-webhooks::ingestion_record::v1::ext%20uuid%2F1"
	if key != want {
		t.Fatalf("expected %q, got %q", want, key)
	}
	if _, err := RecordCacheKey("  "); err == nil {
		t.Fatal("expected empty identifier to fail")
	}
}

var _ core.RecordStore = (*stubRecordStore)(nil)
