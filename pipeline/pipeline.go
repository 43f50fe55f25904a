package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-webhooks/core"
)

// Pipeline runs the asynchronous delivery phase for a persisted record:
// transition to processing, dispatch signals, and settle the record as
// processed or failed. Handler failures surface through the returned error so
// queue workers can schedule retries.
type Pipeline struct {
	Store   core.RecordStore
	Bus     core.SignalBus
	Config  core.Config
	Logger  core.Logger
	Metrics core.MetricsRecorder
	// Outbox, when set, also captures lifecycle signals for durable fan-out.
	Outbox core.SignalOutboxStore
	Now    func() time.Time
}

func New(store core.RecordStore, bus core.SignalBus, cfg core.Config) *Pipeline {
	return &Pipeline{
		Store:  store,
		Bus:    bus,
		Config: cfg,
		Logger: glog.Ensure(nil),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Deliver processes one record end to end. The generic received signal fires
// first, then the specialized signal mapped for the provider/event pair. An
// error from either marks the record failed and is returned wrapped so the
// caller can retry.
func (p *Pipeline) Deliver(ctx context.Context, recordID string) (core.IngestionRecord, error) {
	if p == nil || p.Store == nil || p.Bus == nil {
		return core.IngestionRecord{}, fmt.Errorf("pipeline: store and bus are required")
	}

	record, err := p.Store.BeginProcessing(ctx, recordID)
	if err != nil {
		return core.IngestionRecord{}, err
	}

	if err := p.dispatch(ctx, record); err != nil {
		failed, failErr := p.Store.FailProcessing(ctx, record.ID, err.Error())
		if failErr != nil {
			return record, failErr
		}
		p.emitLifecycle(ctx, core.SignalFailed, failed, err)
		p.observeDelivery(ctx, failed, "failed")
		return failed, core.NewProcessingError(err, "pipeline: delivery failed", map[string]any{
			"record_id": record.ID,
			"provider":  record.Provider,
			"attempts":  failed.Attempts,
		})
	}

	processed, err := p.Store.CompleteProcessing(ctx, record.ID)
	if err != nil {
		return record, err
	}
	p.emitLifecycle(ctx, core.SignalProcessed, processed, nil)
	p.observeDelivery(ctx, processed, "processed")
	return processed, nil
}

// FailTerminally settles a record as failed after retries are exhausted. The
// failed signal is dispatched best-effort; handler errors never surface here.
func (p *Pipeline) FailTerminally(ctx context.Context, recordID string, cause error) (core.IngestionRecord, error) {
	if p == nil || p.Store == nil {
		return core.IngestionRecord{}, fmt.Errorf("pipeline: store is required")
	}
	message := "delivery attempts exhausted"
	if cause != nil {
		message = cause.Error()
	}
	record, err := p.Store.FailProcessing(ctx, recordID, message)
	if err != nil {
		return core.IngestionRecord{}, err
	}
	p.emitLifecycle(ctx, core.SignalFailed, record, cause)
	p.observeDelivery(ctx, record, "dead")
	return record, nil
}

// dispatch publishes the signals whose handlers constitute processing. Errors
// propagate so the delivery attempt fails.
func (p *Pipeline) dispatch(ctx context.Context, record core.IngestionRecord) error {
	received := p.newSignal(core.SignalReceived, record, nil)
	p.enqueueOutbox(ctx, received)
	if err := p.Bus.Publish(ctx, received); err != nil {
		return err
	}

	name, mapped := p.Config.SignalName(record.Provider, record.EventType)
	if !mapped {
		return nil
	}
	specialized := p.newSignal(name, record, nil)
	p.enqueueOutbox(ctx, specialized)
	return p.Bus.Publish(ctx, specialized)
}

// emitLifecycle publishes terminal-state signals. These are notifications, not
// processing: handler errors are logged and swallowed.
func (p *Pipeline) emitLifecycle(ctx context.Context, name string, record core.IngestionRecord, cause error) {
	signal := p.newSignal(name, record, cause)
	p.enqueueOutbox(ctx, signal)
	if err := p.Bus.Publish(ctx, signal); err != nil {
		p.logger().WithContext(ctx).Error("lifecycle signal handler failed",
			"signal", name,
			"record_id", record.ID,
			"error", err.Error(),
		)
	}
}

func (p *Pipeline) enqueueOutbox(ctx context.Context, signal core.Signal) {
	if p.Outbox == nil {
		return
	}
	if err := p.Outbox.Enqueue(ctx, signal); err != nil {
		p.logger().WithContext(ctx).Error("outbox enqueue failed",
			"signal", signal.Name,
			"record_id", signal.Record.ID,
			"error", err.Error(),
		)
	}
}

func (p *Pipeline) observeDelivery(ctx context.Context, record core.IngestionRecord, outcome string) {
	if p.Metrics == nil {
		return
	}
	p.Metrics.IncCounter(ctx, "webhooks.delivery.total", 1, map[string]string{
		"provider": record.Provider,
		"outcome":  outcome,
	})
}

func (p *Pipeline) newSignal(name string, record core.IngestionRecord, cause error) core.Signal {
	return core.NewSignal(strings.TrimSpace(name), record, cause, p.now())
}

func (p *Pipeline) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *Pipeline) logger() core.Logger {
	if p != nil && p.Logger != nil {
		return p.Logger
	}
	return glog.Ensure(nil)
}
