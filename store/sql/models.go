package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type ingestionRecordRow struct {
	bun.BaseModel `bun:"table:webhook_ingestion_records,alias:wir"`

	ID           string            `bun:"id,pk"`
	ExternalUUID string            `bun:"external_uuid,notnull"`
	Provider     string            `bun:"provider,notnull"`
	EventType    string            `bun:"event_type,notnull"`
	ExternalID   string            `bun:"external_id"`
	Headers      map[string]string `bun:"headers,type:jsonb"`
	Payload      map[string]any    `bun:"payload,type:jsonb"`
	Status       string            `bun:"status,notnull"`
	ErrorMessage string            `bun:"error_message"`
	Attempts     int               `bun:"attempts,notnull"`
	ProcessedAt  *time.Time        `bun:"processed_at,nullzero"`
	CreatedAt    time.Time         `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time         `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type signalOutboxRow struct {
	bun.BaseModel `bun:"table:webhook_signal_outbox,alias:wso"`

	ID                 string         `bun:"id,pk"`
	SignalID           string         `bun:"signal_id,notnull"`
	Name               string         `bun:"name,notnull"`
	RecordID           string         `bun:"record_id"`
	RecordExternalUUID string         `bun:"record_external_uuid"`
	Provider           string         `bun:"provider"`
	EventType          string         `bun:"event_type"`
	Error              string         `bun:"error,notnull"`
	Metadata           map[string]any `bun:"metadata,type:jsonb,notnull"`
	Status             string         `bun:"status,notnull"`
	Attempts           int            `bun:"attempts,notnull"`
	NextAttemptAt      *time.Time     `bun:"next_attempt_at,nullzero"`
	OccurredAt         time.Time      `bun:"occurred_at,notnull"`
	CreatedAt          time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt          time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
