package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-webhooks/core"
	"github.com/goliatone/go-webhooks/retention"
)

const (
	TypeDeliverRecord = "webhooks.command.deliver"
	TypeReplayRecord  = "webhooks.command.replay"
	TypePruneRecords  = "webhooks.command.prune"
)

type DeliverRecordMessage struct {
	RecordID string
}

func (DeliverRecordMessage) Type() string { return TypeDeliverRecord }

func (m DeliverRecordMessage) Validate() error {
	if strings.TrimSpace(m.RecordID) == "" {
		return fmt.Errorf("command: record id is required")
	}
	return nil
}

type ReplayRecordMessage struct {
	Request retention.ReplayRequest
}

func (ReplayRecordMessage) Type() string { return TypeReplayRecord }

func (m ReplayRecordMessage) Validate() error {
	if strings.TrimSpace(m.Request.RecordID) == "" {
		return fmt.Errorf("command: record id is required")
	}
	return nil
}

type PruneRecordsMessage struct {
	Request retention.PruneRequest
}

func (PruneRecordsMessage) Type() string { return TypePruneRecords }

func (m PruneRecordsMessage) Validate() error {
	if m.Request.RetentionDays < 0 {
		return fmt.Errorf("command: retention days must not be negative")
	}
	if m.Request.Status != "" {
		if _, err := core.ParseDeliveryStatus(string(m.Request.Status)); err != nil {
			return err
		}
	}
	return nil
}
