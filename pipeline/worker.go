package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-webhooks/core"
)

// Worker drains delivery jobs from a queue and runs them through the
// pipeline. Failed attempts are requeued on the retry schedule until the
// attempt budget is exhausted, then dead-lettered with the record settled as
// failed.
type Worker struct {
	Pipeline    *Pipeline
	Dequeuer    core.JobDequeuer
	RetryPolicy RetryPolicy
	MaxAttempts int
	Hooks       []core.JobWorkerHook
	Logger      core.Logger
	Now         func() time.Time
}

func NewWorker(pipeline *Pipeline, dequeuer core.JobDequeuer) *Worker {
	return &Worker{
		Pipeline:    pipeline,
		Dequeuer:    dequeuer,
		RetryPolicy: DefaultRetryPolicy(),
		MaxAttempts: DefaultMaxAttempts,
		Logger:      glog.Ensure(nil),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Run consumes deliveries until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.Pipeline == nil || w.Dequeuer == nil {
		return fmt.Errorf("pipeline: worker requires a pipeline and a dequeuer")
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		delivery, err := w.Dequeuer.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			w.logger().WithContext(ctx).Error("dequeue failed", "error", err.Error())
			continue
		}
		if delivery == nil {
			continue
		}
		if err := w.ProcessDelivery(ctx, delivery); err != nil {
			w.logger().WithContext(ctx).Error("delivery attempt failed", "error", err.Error())
		}
	}
}

// ProcessDelivery runs one queued delivery. The record's persisted attempt
// counter drives the retry decision so replays and restarts stay monotonic.
func (w *Worker) ProcessDelivery(ctx context.Context, delivery core.JobDelivery) error {
	if w == nil || w.Pipeline == nil {
		return fmt.Errorf("pipeline: worker requires a pipeline")
	}
	msg := delivery.Message()
	recordID, err := recordIDFromMessage(msg)
	if err != nil {
		_ = delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: err.Error()})
		return err
	}

	startedAt := w.now()
	event := core.JobWorkerEvent{Message: msg, StartedAt: startedAt}
	w.fireHooks(ctx, event, hookStart)

	record, deliverErr := w.Pipeline.Deliver(ctx, recordID)
	event.Attempt = record.Attempts
	event.Duration = w.now().Sub(startedAt)

	if deliverErr == nil {
		w.fireHooks(ctx, event, hookSuccess)
		return delivery.Ack(ctx)
	}
	event.Err = deliverErr

	// A record that is gone or refuses the transition never makes progress;
	// requeueing would spin on the same message forever.
	if isUnprocessableDelivery(deliverErr) {
		w.fireHooks(ctx, event, hookFailure)
		if err := delivery.Nack(ctx, core.JobNackOptions{
			DeadLetter: true,
			Reason:     deliverErr.Error(),
		}); err != nil {
			return err
		}
		return deliverErr
	}

	if record.Attempts >= w.maxAttempts() {
		if _, failErr := w.Pipeline.FailTerminally(ctx, recordID, deliverErr); failErr != nil {
			w.logger().WithContext(ctx).Error("terminal fail persist failed",
				"record_id", recordID,
				"error", failErr.Error(),
			)
		}
		w.fireHooks(ctx, event, hookFailure)
		if err := delivery.Nack(ctx, core.JobNackOptions{
			DeadLetter: true,
			Reason:     deliverErr.Error(),
		}); err != nil {
			return err
		}
		return deliverErr
	}

	event.Delay = w.retryPolicy().NextDelay(record.Attempts)
	w.fireHooks(ctx, event, hookRetry)
	if err := delivery.Nack(ctx, core.JobNackOptions{
		Delay:   event.Delay,
		Requeue: true,
		Reason:  deliverErr.Error(),
	}); err != nil {
		return err
	}
	return deliverErr
}

func isUnprocessableDelivery(err error) bool {
	return errors.Is(err, core.ErrRecordNotFound) ||
		errors.Is(err, core.ErrInvalidDeliveryStatusTransition)
}

func recordIDFromMessage(msg *core.JobExecutionMessage) (string, error) {
	if msg == nil {
		return "", fmt.Errorf("pipeline: delivery message is required")
	}
	if id := paramString(msg.Parameters, "record_id"); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("pipeline: delivery message is missing record_id")
}

func paramString(params map[string]any, key string) string {
	if len(params) == 0 {
		return ""
	}
	value, ok := params[key]
	if !ok {
		return ""
	}
	text, ok := value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(text)
}

type hookPhase int

const (
	hookStart hookPhase = iota
	hookSuccess
	hookFailure
	hookRetry
)

func (w *Worker) fireHooks(ctx context.Context, event core.JobWorkerEvent, phase hookPhase) {
	for _, hook := range w.Hooks {
		if hook == nil {
			continue
		}
		switch phase {
		case hookStart:
			hook.OnStart(ctx, event)
		case hookSuccess:
			hook.OnSuccess(ctx, event)
		case hookFailure:
			hook.OnFailure(ctx, event)
		case hookRetry:
			hook.OnRetry(ctx, event)
		}
	}
}

func (w *Worker) retryPolicy() RetryPolicy {
	if w != nil && w.RetryPolicy != nil {
		return w.RetryPolicy
	}
	return DefaultRetryPolicy()
}

func (w *Worker) maxAttempts() int {
	if w != nil && w.MaxAttempts > 0 {
		return w.MaxAttempts
	}
	return DefaultMaxAttempts
}

func (w *Worker) now() time.Time {
	if w != nil && w.Now != nil {
		return w.Now().UTC()
	}
	return time.Now().UTC()
}

func (w *Worker) logger() core.Logger {
	if w != nil && w.Logger != nil {
		return w.Logger
	}
	return glog.Ensure(nil)
}
