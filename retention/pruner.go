package retention

import (
	"context"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-webhooks/core"
)

// PruneRequest bounds one prune run. Zero RetentionDays falls back to the
// configured retention window.
type PruneRequest struct {
	RetentionDays int
	Provider      string
	Status        core.DeliveryStatus
	DryRun        bool
}

type PruneResult struct {
	Affected  int
	OlderThan time.Time
	DryRun    bool
}

// Pruner deletes records that aged out of the retention window. Only
// processed records go by default; pending and failed records represent
// unfinished work and need an explicit status filter.
type Pruner struct {
	Store  core.RecordStore
	Config core.Config
	Logger core.Logger
	Now    func() time.Time
}

func NewPruner(store core.RecordStore, cfg core.Config) *Pruner {
	return &Pruner{
		Store:  store,
		Config: cfg,
		Logger: glog.Ensure(nil),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (p *Pruner) Prune(ctx context.Context, req PruneRequest) (PruneResult, error) {
	if p == nil || p.Store == nil {
		return PruneResult{}, fmt.Errorf("retention: pruner requires a record store")
	}
	days := req.RetentionDays
	if days <= 0 {
		days = p.Config.RetentionDays
	}
	if days <= 0 {
		return PruneResult{}, fmt.Errorf("retention: retention window is not configured")
	}

	status := req.Status
	if status == "" {
		status = core.DeliveryStatusProcessed
	}
	olderThan := p.now().AddDate(0, 0, -days)

	affected, err := p.Store.Prune(ctx, core.PruneFilter{
		OlderThan: olderThan,
		Provider:  req.Provider,
		Status:    status,
		DryRun:    req.DryRun,
	})
	if err != nil {
		return PruneResult{}, err
	}

	p.logger().WithContext(ctx).Info("retention prune finished",
		"affected", affected,
		"older_than", olderThan.Format(time.RFC3339),
		"status", string(status),
		"dry_run", req.DryRun,
	)
	return PruneResult{Affected: affected, OlderThan: olderThan, DryRun: req.DryRun}, nil
}

func (p *Pruner) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *Pruner) logger() core.Logger {
	if p != nil && p.Logger != nil {
		return p.Logger
	}
	return glog.Ensure(nil)
}
