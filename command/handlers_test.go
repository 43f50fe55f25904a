package command

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-webhooks/core"
	"github.com/goliatone/go-webhooks/pipeline"
	"github.com/goliatone/go-webhooks/retention"
)

type memoryStore struct {
	mu      sync.Mutex
	seq     int
	records map[string]core.IngestionRecord
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: map[string]core.IngestionRecord{}}
}

func (s *memoryStore) seed(record core.IngestionRecord) core.IngestionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	record.ID = strconv.Itoa(s.seq)
	if record.ExternalUUID == "" {
		record.ExternalUUID = core.NewExternalUUID()
	}
	if record.Status == "" {
		record.Status = core.DeliveryStatusPending
	}
	s.records[record.ID] = record
	return record
}

func (s *memoryStore) Create(_ context.Context, in core.CreateRecordInput) (core.IngestionRecord, error) {
	return s.seed(core.IngestionRecord{Provider: in.Provider, EventType: in.EventType}), nil
}

func (s *memoryStore) Get(_ context.Context, id string) (core.IngestionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return core.IngestionRecord{}, core.ErrRecordNotFound
	}
	return record, nil
}

func (s *memoryStore) GetByExternalUUID(_ context.Context, externalUUID string) (core.IngestionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.records {
		if record.ExternalUUID == externalUUID {
			return record, nil
		}
	}
	return core.IngestionRecord{}, core.ErrRecordNotFound
}

func (s *memoryStore) List(context.Context, core.RecordFilter) ([]core.IngestionRecord, error) {
	return nil, nil
}

func (s *memoryStore) transition(id string, apply func(*core.IngestionRecord) error) (core.IngestionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return core.IngestionRecord{}, core.ErrRecordNotFound
	}
	if err := apply(&record); err != nil {
		return core.IngestionRecord{}, err
	}
	s.records[id] = record
	return record, nil
}

func (s *memoryStore) BeginProcessing(_ context.Context, id string) (core.IngestionRecord, error) {
	return s.transition(id, func(r *core.IngestionRecord) error {
		return r.BeginProcessing(time.Now().UTC())
	})
}

func (s *memoryStore) CompleteProcessing(_ context.Context, id string) (core.IngestionRecord, error) {
	return s.transition(id, func(r *core.IngestionRecord) error {
		return r.CompleteProcessing(time.Now().UTC())
	})
}

func (s *memoryStore) FailProcessing(_ context.Context, id string, message string) (core.IngestionRecord, error) {
	return s.transition(id, func(r *core.IngestionRecord) error {
		r.FailProcessing(message, time.Now().UTC())
		return nil
	})
}

func (s *memoryStore) ResetForRetry(_ context.Context, id string) (core.IngestionRecord, error) {
	return s.transition(id, func(r *core.IngestionRecord) error {
		r.ResetForRetry(time.Now().UTC())
		return nil
	})
}

func (s *memoryStore) Prune(_ context.Context, filter core.PruneFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, record := range s.records {
		if !filter.OlderThan.IsZero() && !record.CreatedAt.Before(filter.OlderThan) {
			continue
		}
		if filter.Status != "" && record.Status != filter.Status {
			continue
		}
		count++
		if !filter.DryRun {
			delete(s.records, id)
		}
	}
	return count, nil
}

type captureEnqueuer struct {
	messages []*core.JobExecutionMessage
}

func (e *captureEnqueuer) Enqueue(_ context.Context, msg *core.JobExecutionMessage) error {
	e.messages = append(e.messages, msg)
	return nil
}

func TestDeliverRecordCommand_ExecuteStoresRecord(t *testing.T) {
	store := newMemoryStore()
	record := store.seed(core.IngestionRecord{Provider: "stripe", EventType: "invoice.paid"})
	p := pipeline.New(store, core.NewInMemorySignalBus(), core.Config{ServiceName: "webhooks"})

	cmd := NewDeliverRecordCommand(p)
	collector := gocmd.NewResult[core.IngestionRecord]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := cmd.Execute(ctx, DeliverRecordMessage{RecordID: record.ID}); err != nil {
		t.Fatalf("execute deliver: %v", err)
	}
	stored, ok := collector.Load()
	if !ok {
		t.Fatal("expected result to be stored")
	}
	if stored.Status != core.DeliveryStatusProcessed {
		t.Fatalf("expected processed record, got %s", stored.Status)
	}
}

func TestReplayRecordCommand_ExecuteDelegates(t *testing.T) {
	store := newMemoryStore()
	record := store.seed(core.IngestionRecord{Provider: "stripe", Status: core.DeliveryStatusFailed})
	enqueuer := &captureEnqueuer{}
	replayer := retention.NewReplayer(store, nil, enqueuer)

	cmd := NewReplayRecordCommand(replayer)
	collector := gocmd.NewResult[core.IngestionRecord]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := cmd.Execute(ctx, ReplayRecordMessage{
		Request: retention.ReplayRequest{RecordID: record.ExternalUUID},
	}); err != nil {
		t.Fatalf("execute replay: %v", err)
	}
	stored, ok := collector.Load()
	if !ok {
		t.Fatal("expected result to be stored")
	}
	if stored.Status != core.DeliveryStatusPending {
		t.Fatalf("expected pending record, got %s", stored.Status)
	}
	if len(enqueuer.messages) != 1 {
		t.Fatalf("expected 1 enqueued delivery, got %d", len(enqueuer.messages))
	}
}

func TestPruneRecordsCommand_ExecuteStoresResult(t *testing.T) {
	store := newMemoryStore()
	store.seed(core.IngestionRecord{
		Provider:  "stripe",
		Status:    core.DeliveryStatusProcessed,
		CreatedAt: time.Now().UTC().AddDate(0, 0, -60),
	})
	pruner := retention.NewPruner(store, core.Config{ServiceName: "webhooks", RetentionDays: 30})

	cmd := NewPruneRecordsCommand(pruner)
	collector := gocmd.NewResult[retention.PruneResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := cmd.Execute(ctx, PruneRecordsMessage{}); err != nil {
		t.Fatalf("execute prune: %v", err)
	}
	stored, ok := collector.Load()
	if !ok {
		t.Fatal("expected result to be stored")
	}
	if stored.Affected != 1 {
		t.Fatalf("expected 1 pruned record, got %d", stored.Affected)
	}
}

func TestCommandsRequireDependencies(t *testing.T) {
	if err := (&DeliverRecordCommand{}).Execute(context.Background(), DeliverRecordMessage{RecordID: "1"}); err == nil {
		t.Fatal("expected dependency error")
	}
	if err := (&ReplayRecordCommand{}).Execute(context.Background(), ReplayRecordMessage{}); err == nil {
		t.Fatal("expected dependency error")
	}
	if err := (&PruneRecordsCommand{}).Execute(context.Background(), PruneRecordsMessage{}); err == nil {
		t.Fatal("expected dependency error")
	}
}

func TestMessageValidation(t *testing.T) {
	if err := (DeliverRecordMessage{}).Validate(); err == nil {
		t.Fatal("expected empty record id to fail validation")
	}
	if err := (ReplayRecordMessage{}).Validate(); err == nil {
		t.Fatal("expected empty replay request to fail validation")
	}
	if err := (PruneRecordsMessage{Request: retention.PruneRequest{RetentionDays: -1}}).Validate(); err == nil {
		t.Fatal("expected negative retention to fail validation")
	}
	if err := (PruneRecordsMessage{Request: retention.PruneRequest{Status: "archived"}}).Validate(); err == nil {
		t.Fatal("expected unknown status to fail validation")
	}
	valid := PruneRecordsMessage{Request: retention.PruneRequest{RetentionDays: 7, Status: core.DeliveryStatusFailed}}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
}
