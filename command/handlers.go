package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-webhooks/pipeline"
	"github.com/goliatone/go-webhooks/retention"
)

// DeliverRecordCommand runs one delivery attempt inline. Queue workers use
// the pipeline directly; this command exists for operational tooling.
type DeliverRecordCommand struct {
	pipeline *pipeline.Pipeline
}

func NewDeliverRecordCommand(p *pipeline.Pipeline) *DeliverRecordCommand {
	return &DeliverRecordCommand{pipeline: p}
}

func (c *DeliverRecordCommand) Execute(ctx context.Context, msg DeliverRecordMessage) error {
	if c == nil || c.pipeline == nil {
		return commandDependencyError("command: delivery pipeline is required")
	}
	record, err := c.pipeline.Deliver(ctx, msg.RecordID)
	if err != nil {
		return err
	}
	storeResult(ctx, record)
	return nil
}

type ReplayRecordCommand struct {
	replayer *retention.Replayer
}

func NewReplayRecordCommand(replayer *retention.Replayer) *ReplayRecordCommand {
	return &ReplayRecordCommand{replayer: replayer}
}

func (c *ReplayRecordCommand) Execute(ctx context.Context, msg ReplayRecordMessage) error {
	if c == nil || c.replayer == nil {
		return commandDependencyError("command: replayer is required")
	}
	record, err := c.replayer.Replay(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, record)
	return nil
}

type PruneRecordsCommand struct {
	pruner *retention.Pruner
}

func NewPruneRecordsCommand(pruner *retention.Pruner) *PruneRecordsCommand {
	return &PruneRecordsCommand{pruner: pruner}
}

func (c *PruneRecordsCommand) Execute(ctx context.Context, msg PruneRecordsMessage) error {
	if c == nil || c.pruner == nil {
		return commandDependencyError("command: pruner is required")
	}
	result, err := c.pruner.Prune(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, result)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
