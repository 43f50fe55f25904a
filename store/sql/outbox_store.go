package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-webhooks/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	outboxStatusPending    = "pending"
	outboxStatusProcessing = "processing"
	outboxStatusDelivered  = "delivered"
	outboxStatusFailed     = "failed"
)

// SignalOutboxStore is the durable signal buffer drained by the outbox
// dispatcher.
type SignalOutboxStore struct {
	db   *bun.DB
	repo repository.Repository[*signalOutboxRow]
}

func NewSignalOutboxStore(db *bun.DB) (*SignalOutboxStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*signalOutboxRow](db, signalOutboxHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid signal outbox repository wiring: %w", err)
		}
	}
	return &SignalOutboxStore{db: db, repo: repo}, nil
}

func (s *SignalOutboxStore) Enqueue(ctx context.Context, signal core.Signal) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: signal outbox store is not configured")
	}
	if strings.TrimSpace(signal.ID) == "" {
		return fmt.Errorf("sqlstore: signal id is required")
	}
	if strings.TrimSpace(signal.Name) == "" {
		return fmt.Errorf("sqlstore: signal name is required")
	}

	occurredAt := signal.OccurredAt.UTC()
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	now := time.Now().UTC()
	row := &signalOutboxRow{
		ID:                 uuid.NewString(),
		SignalID:           strings.TrimSpace(signal.ID),
		Name:               strings.TrimSpace(signal.Name),
		RecordID:           strings.TrimSpace(signal.Record.ID),
		RecordExternalUUID: strings.TrimSpace(signal.Record.ExternalUUID),
		Provider:           strings.TrimSpace(signal.Record.Provider),
		EventType:          strings.TrimSpace(signal.Record.EventType),
		Error:              strings.TrimSpace(signal.Error),
		Metadata:           outboxMetadata(signal.Metadata),
		Status:             outboxStatusPending,
		Attempts:           0,
		OccurredAt:         occurredAt,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	_, err := s.repo.Create(ctx, row)
	return err
}

func (s *SignalOutboxStore) ClaimBatch(ctx context.Context, limit int) ([]core.Signal, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: signal outbox store is not configured")
	}
	if limit <= 0 {
		limit = 1
	}
	now := time.Now().UTC()
	var rows []signalOutboxRow
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := `
WITH claimed AS (
	SELECT id
	FROM webhook_signal_outbox
	WHERE status = ?
	  AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
	ORDER BY occurred_at ASC
	LIMIT ?
)
UPDATE webhook_signal_outbox
SET status = ?, updated_at = ?
WHERE id IN (SELECT id FROM claimed)
  AND status = ?
RETURNING
	id,
	signal_id,
	name,
	record_id,
	record_external_uuid,
	provider,
	event_type,
	error,
	metadata,
	status,
	attempts,
	next_attempt_at,
	occurred_at,
	created_at,
	updated_at
`
		return tx.NewRaw(
			query,
			outboxStatusPending,
			now,
			limit,
			outboxStatusProcessing,
			now,
			outboxStatusPending,
		).Scan(ctx, &rows)
	})
	if err != nil {
		return nil, err
	}

	signals := make([]core.Signal, 0, len(rows))
	for _, row := range rows {
		signals = append(signals, outboxRowToSignal(row))
	}
	return signals, nil
}

func (s *SignalOutboxStore) Ack(ctx context.Context, signalID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: signal outbox store is not configured")
	}
	signalID = strings.TrimSpace(signalID)
	if signalID == "" {
		return fmt.Errorf("sqlstore: signal id is required")
	}
	_, err := s.db.NewUpdate().
		Model((*signalOutboxRow)(nil)).
		Set("status = ?", outboxStatusDelivered).
		Set("next_attempt_at = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("signal_id = ?", signalID).
		Exec(ctx)
	return err
}

func (s *SignalOutboxStore) Retry(ctx context.Context, signalID string, cause error, nextAttemptAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: signal outbox store is not configured")
	}
	signalID = strings.TrimSpace(signalID)
	if signalID == "" {
		return fmt.Errorf("sqlstore: signal id is required")
	}

	// Zero next attempt means retries are exhausted.
	status := outboxStatusPending
	var next *time.Time
	if !nextAttemptAt.IsZero() {
		value := nextAttemptAt.UTC()
		next = &value
	} else {
		status = outboxStatusFailed
	}

	lastError := ""
	if cause != nil {
		lastError = strings.TrimSpace(cause.Error())
	}
	_, err := s.db.NewUpdate().
		Model((*signalOutboxRow)(nil)).
		Set("status = ?", status).
		Set("attempts = attempts + 1").
		Set("next_attempt_at = ?", next).
		Set("error = ?", lastError).
		Set("updated_at = ?", time.Now().UTC()).
		Where("signal_id = ?", signalID).
		Exec(ctx)
	return err
}

func outboxRowToSignal(row signalOutboxRow) core.Signal {
	signal := core.Signal{
		ID:   row.SignalID,
		Name: row.Name,
		Record: core.IngestionRecord{
			ID:           row.RecordID,
			ExternalUUID: row.RecordExternalUUID,
			Provider:     row.Provider,
			EventType:    row.EventType,
		},
		Error:      row.Error,
		Metadata:   copyAnyMap(row.Metadata),
		OccurredAt: row.OccurredAt,
	}
	if signal.Metadata == nil {
		signal.Metadata = map[string]any{}
	}
	signal.Metadata[core.MetadataKeyOutboxAttempts] = row.Attempts
	return signal
}

func outboxMetadata(in map[string]any) map[string]any {
	out := copyAnyMap(in)
	if out == nil {
		out = map[string]any{}
	}
	delete(out, core.MetadataKeyOutboxAttempts)
	return out
}

var _ core.SignalOutboxStore = (*SignalOutboxStore)(nil)
