package retention

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-webhooks/core"
	"github.com/goliatone/go-webhooks/pipeline"
)

// ReplayRequest identifies a record by external UUID or primary key and
// controls how the replay runs. Force overrides the processed guard; Sync
// delivers inline instead of enqueueing.
type ReplayRequest struct {
	RecordID string
	Force    bool
	Sync     bool
}

// Replayer resets a record to pending and pushes it back through delivery.
// Replays preserve the attempt history so operational counters stay
// monotonic.
type Replayer struct {
	Store    core.RecordStore
	Pipeline *pipeline.Pipeline
	Enqueuer core.JobEnqueuer
	Logger   core.Logger
}

func NewReplayer(store core.RecordStore, p *pipeline.Pipeline, enqueuer core.JobEnqueuer) *Replayer {
	return &Replayer{
		Store:    store,
		Pipeline: p,
		Enqueuer: enqueuer,
		Logger:   glog.Ensure(nil),
	}
}

func (r *Replayer) Replay(ctx context.Context, req ReplayRequest) (core.IngestionRecord, error) {
	if r == nil || r.Store == nil {
		return core.IngestionRecord{}, fmt.Errorf("retention: replayer requires a record store")
	}
	id := strings.TrimSpace(req.RecordID)
	if id == "" {
		return core.IngestionRecord{}, goerrors.New("retention: record id is required", goerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).
			WithTextCode(core.WebhookErrorBadInput)
	}

	record, err := r.lookup(ctx, id)
	if err != nil {
		return core.IngestionRecord{}, err
	}

	if record.Status == core.DeliveryStatusProcessed && !req.Force {
		return core.IngestionRecord{}, goerrors.New(
			"retention: record already processed, replay requires force",
			goerrors.CategoryConflict,
		).
			WithCode(http.StatusConflict).
			WithTextCode(core.WebhookErrorConflict).
			WithMetadata(map[string]any{"record_id": record.ID, "status": string(record.Status)})
	}

	reset, err := r.Store.ResetForRetry(ctx, record.ID)
	if err != nil {
		return core.IngestionRecord{}, err
	}

	if req.Sync {
		if r.Pipeline == nil {
			return reset, fmt.Errorf("retention: synchronous replay requires a pipeline")
		}
		return r.Pipeline.Deliver(ctx, reset.ID)
	}

	if r.Enqueuer == nil {
		return reset, fmt.Errorf("retention: asynchronous replay requires an enqueuer")
	}
	if err := r.Enqueuer.Enqueue(ctx, core.DeliveryMessage(reset)); err != nil {
		return reset, err
	}
	r.logger().WithContext(ctx).Info("replay enqueued",
		"record_id", reset.ID,
		"provider", reset.Provider,
	)
	return reset, nil
}

// lookup tries the external UUID first, then the primary key.
func (r *Replayer) lookup(ctx context.Context, id string) (core.IngestionRecord, error) {
	record, err := r.Store.GetByExternalUUID(ctx, id)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, core.ErrRecordNotFound) {
		return core.IngestionRecord{}, err
	}
	record, err = r.Store.Get(ctx, id)
	if err == nil {
		return record, nil
	}
	if errors.Is(err, core.ErrRecordNotFound) {
		return core.IngestionRecord{}, goerrors.New("retention: record not found: "+id, goerrors.CategoryNotFound).
			WithCode(http.StatusNotFound).
			WithMetadata(map[string]any{"record_id": id})
	}
	return core.IngestionRecord{}, err
}

func (r *Replayer) logger() core.Logger {
	if r != nil && r.Logger != nil {
		return r.Logger
	}
	return glog.Ensure(nil)
}
