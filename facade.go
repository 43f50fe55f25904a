package webhooks

import (
	"fmt"

	webhookcommand "github.com/goliatone/go-webhooks/command"
	"github.com/goliatone/go-webhooks/core"
	"github.com/goliatone/go-webhooks/inbound"
	"github.com/goliatone/go-webhooks/pipeline"
	"github.com/goliatone/go-webhooks/retention"
)

// Commands bundles the go-command handlers for the operational surface.
type Commands struct {
	Deliver *webhookcommand.DeliverRecordCommand
	Replay  *webhookcommand.ReplayRecordCommand
	Prune   *webhookcommand.PruneRecordsCommand
}

// Facade wires the ingestion service, delivery pipeline, and operational
// tooling into one assembly so embedders configure the system in one place.
type Facade struct {
	service  *core.Service
	pipeline *pipeline.Pipeline
	pruner   *retention.Pruner
	replayer *retention.Replayer
	gateway  *inbound.Gateway
	commands Commands
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	outbox   core.SignalOutboxStore
	metrics  core.MetricsRecorder
	enqueuer core.JobEnqueuer
}

// WithSignalOutbox captures lifecycle signals in a durable outbox alongside
// the synchronous bus dispatch.
func WithSignalOutbox(store core.SignalOutboxStore) FacadeOption {
	return func(options *facadeOptions) {
		options.outbox = store
	}
}

func WithPipelineMetrics(recorder core.MetricsRecorder) FacadeOption {
	return func(options *facadeOptions) {
		options.metrics = recorder
	}
}

// WithReplayEnqueuer overrides the queue used for async replays. Defaults to
// the service enqueuer.
func WithReplayEnqueuer(enqueuer core.JobEnqueuer) FacadeOption {
	return func(options *facadeOptions) {
		options.enqueuer = enqueuer
	}
}

func NewFacade(service *core.Service, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("webhooks: service is required")
	}
	if service.Store() == nil {
		return nil, fmt.Errorf("webhooks: service requires a record store")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	deliveryPipeline := pipeline.New(service.Store(), service.Bus(), service.Config())
	deliveryPipeline.Logger = service.Logger()
	deliveryPipeline.Outbox = cfg.outbox
	deliveryPipeline.Metrics = cfg.metrics

	pruner := retention.NewPruner(service.Store(), service.Config())
	pruner.Logger = service.Logger()

	enqueuer := cfg.enqueuer
	if enqueuer == nil {
		enqueuer = service.Enqueuer()
	}
	replayer := retention.NewReplayer(service.Store(), deliveryPipeline, enqueuer)
	replayer.Logger = service.Logger()

	facade := &Facade{
		service:  service,
		pipeline: deliveryPipeline,
		pruner:   pruner,
		replayer: replayer,
		gateway:  inbound.NewGateway(service),
	}
	facade.commands = Commands{
		Deliver: webhookcommand.NewDeliverRecordCommand(deliveryPipeline),
		Replay:  webhookcommand.NewReplayRecordCommand(replayer),
		Prune:   webhookcommand.NewPruneRecordsCommand(pruner),
	}
	return facade, nil
}

func (f *Facade) Service() *core.Service {
	if f == nil {
		return nil
	}
	return f.service
}

func (f *Facade) Pipeline() *pipeline.Pipeline {
	if f == nil {
		return nil
	}
	return f.pipeline
}

func (f *Facade) Pruner() *retention.Pruner {
	if f == nil {
		return nil
	}
	return f.pruner
}

func (f *Facade) Replayer() *retention.Replayer {
	if f == nil {
		return nil
	}
	return f.replayer
}

// Gateway returns the HTTP-shaped boundary for the service.
func (f *Facade) Gateway() *inbound.Gateway {
	if f == nil {
		return nil
	}
	return f.gateway
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

// NewDeliveryWorker builds a queue worker bound to the facade pipeline.
func (f *Facade) NewDeliveryWorker(dequeuer core.JobDequeuer) *pipeline.Worker {
	if f == nil {
		return nil
	}
	worker := pipeline.NewWorker(f.pipeline, dequeuer)
	worker.Logger = f.service.Logger()
	return worker
}
