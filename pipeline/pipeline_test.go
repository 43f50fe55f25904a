package pipeline

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-webhooks/core"
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
	if record.Status == "" {
		record.Status = core.DeliveryStatusPending
	}
	s.records[record.ID] = record
	return record
}

func (s *memoryStore) Create(_ context.Context, in core.CreateRecordInput) (core.IngestionRecord, error) {
	return s.seed(core.IngestionRecord{
		Provider:   in.Provider,
		EventType:  in.EventType,
		ExternalID: in.ExternalID,
		Headers:    in.Headers,
		Payload:    in.Payload,
	}), nil
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

func (s *memoryStore) Prune(context.Context, core.PruneFilter) (int, error) {
	return 0, nil
}

func pipelineForTest(store *memoryStore, bus core.SignalBus, eventMap map[string]string) *Pipeline {
	cfg := core.Config{ServiceName: "webhooks", EventMap: eventMap}
	return New(store, bus, cfg)
}

func TestDeliverProcessesRecord(t *testing.T) {
	store := newMemoryStore()
	bus := core.NewInMemorySignalBus()
	var order []string
	bus.Subscribe(core.SignalReceived, core.SignalHandlerFunc(func(_ context.Context, signal core.Signal) error {
		order = append(order, core.SignalReceived)
		if signal.Record.Status != core.DeliveryStatusProcessing {
			t.Fatalf("received signal must carry a processing record, got %s", signal.Record.Status)
		}
		return nil
	}))
	bus.Subscribe(core.SignalProcessed, core.SignalHandlerFunc(func(context.Context, core.Signal) error {
		order = append(order, core.SignalProcessed)
		return nil
	}))

	record := store.seed(core.IngestionRecord{Provider: "stripe", EventType: "invoice.paid"})
	p := pipelineForTest(store, bus, nil)

	processed, err := p.Deliver(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if processed.Status != core.DeliveryStatusProcessed {
		t.Fatalf("expected processed, got %s", processed.Status)
	}
	if processed.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", processed.Attempts)
	}
	if processed.ProcessedAt == nil {
		t.Fatal("expected processed_at stamp")
	}
	if len(order) != 2 || order[0] != core.SignalReceived || order[1] != core.SignalProcessed {
		t.Fatalf("unexpected signal order: %v", order)
	}
}

func TestDeliverEmitsMappedSignal(t *testing.T) {
	store := newMemoryStore()
	bus := core.NewInMemorySignalBus()
	mappedFired := false
	bus.Subscribe("billing.invoice.paid", core.SignalHandlerFunc(func(context.Context, core.Signal) error {
		mappedFired = true
		return nil
	}))

	record := store.seed(core.IngestionRecord{Provider: "stripe", EventType: "invoice.paid"})
	p := pipelineForTest(store, bus, map[string]string{"stripe.invoice.paid": "billing.invoice.paid"})

	if _, err := p.Deliver(context.Background(), record.ID); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if !mappedFired {
		t.Fatal("expected mapped signal to fire")
	}
}

func TestDeliverHandlerFailureMarksRecordFailed(t *testing.T) {
	store := newMemoryStore()
	bus := core.NewInMemorySignalBus()
	handlerErr := errors.New("downstream exploded")
	bus.Subscribe(core.SignalReceived, core.SignalHandlerFunc(func(context.Context, core.Signal) error {
		return handlerErr
	}))
	var failedSignal *core.Signal
	bus.Subscribe(core.SignalFailed, core.SignalHandlerFunc(func(_ context.Context, signal core.Signal) error {
		failedSignal = &signal
		return nil
	}))

	record := store.seed(core.IngestionRecord{Provider: "stripe", EventType: "invoice.paid"})
	p := pipelineForTest(store, bus, nil)

	failed, err := p.Deliver(context.Background(), record.ID)
	if err == nil {
		t.Fatal("expected delivery error")
	}
	if !errors.Is(err, handlerErr) {
		t.Fatalf("expected handler cause to survive, got %v", err)
	}
	if failed.Status != core.DeliveryStatusFailed {
		t.Fatalf("expected failed record, got %s", failed.Status)
	}
	if failed.ErrorMessage != handlerErr.Error() {
		t.Fatalf("expected error message persisted, got %q", failed.ErrorMessage)
	}
	if failedSignal == nil {
		t.Fatal("expected failed signal")
	}
	if failedSignal.Error != handlerErr.Error() {
		t.Fatalf("expected cause on failed signal, got %q", failedSignal.Error)
	}
}

func TestDeliverRetryIncrementsAttempts(t *testing.T) {
	store := newMemoryStore()
	bus := core.NewInMemorySignalBus()
	failures := 2
	bus.Subscribe(core.SignalReceived, core.SignalHandlerFunc(func(context.Context, core.Signal) error {
		if failures > 0 {
			failures--
			return errors.New("not yet")
		}
		return nil
	}))

	record := store.seed(core.IngestionRecord{Provider: "stripe", EventType: "invoice.paid"})
	p := pipelineForTest(store, bus, nil)

	for i := 0; i < 2; i++ {
		if _, err := p.Deliver(context.Background(), record.ID); err == nil {
			t.Fatal("expected failure")
		}
	}
	processed, err := p.Deliver(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("third attempt must succeed: %v", err)
	}
	if processed.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", processed.Attempts)
	}
	if processed.ErrorMessage != "" {
		t.Fatalf("expected cleared error message, got %q", processed.ErrorMessage)
	}
}

func TestDeliverProcessedSignalFailureDoesNotFailDelivery(t *testing.T) {
	store := newMemoryStore()
	bus := core.NewInMemorySignalBus()
	bus.Subscribe(core.SignalProcessed, core.SignalHandlerFunc(func(context.Context, core.Signal) error {
		return errors.New("notification listener exploded")
	}))

	record := store.seed(core.IngestionRecord{Provider: "stripe", EventType: "invoice.paid"})
	p := pipelineForTest(store, bus, nil)

	processed, err := p.Deliver(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("deliver must not fail on lifecycle handler errors: %v", err)
	}
	if processed.Status != core.DeliveryStatusProcessed {
		t.Fatalf("expected processed record, got %s", processed.Status)
	}
}

func TestFailTerminallySwallowsHandlerErrors(t *testing.T) {
	store := newMemoryStore()
	bus := core.NewInMemorySignalBus()
	bus.Subscribe(core.SignalFailed, core.SignalHandlerFunc(func(context.Context, core.Signal) error {
		return errors.New("listener exploded")
	}))

	record := store.seed(core.IngestionRecord{Provider: "stripe"})
	p := pipelineForTest(store, bus, nil)

	failed, err := p.FailTerminally(context.Background(), record.ID, errors.New("attempts exhausted"))
	if err != nil {
		t.Fatalf("fail terminally: %v", err)
	}
	if failed.Status != core.DeliveryStatusFailed {
		t.Fatalf("expected failed record, got %s", failed.Status)
	}
}

func TestDeliverCapturesSignalsInOutbox(t *testing.T) {
	store := newMemoryStore()
	bus := core.NewInMemorySignalBus()
	outbox := &captureOutbox{}

	record := store.seed(core.IngestionRecord{Provider: "stripe", EventType: "invoice.paid"})
	p := pipelineForTest(store, bus, nil)
	p.Outbox = outbox

	if _, err := p.Deliver(context.Background(), record.ID); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(outbox.signals) != 2 {
		t.Fatalf("expected received and processed signals in outbox, got %d", len(outbox.signals))
	}
}

type captureOutbox struct {
	signals []core.Signal
}

func (o *captureOutbox) Enqueue(_ context.Context, signal core.Signal) error {
	o.signals = append(o.signals, signal)
	return nil
}

func (o *captureOutbox) ClaimBatch(context.Context, int) ([]core.Signal, error) { return nil, nil }

func (o *captureOutbox) Ack(context.Context, string) error { return nil }

func (o *captureOutbox) Retry(context.Context, string, error, time.Time) error { return nil }
