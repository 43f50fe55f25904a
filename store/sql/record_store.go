package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-webhooks/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RecordStore persists ingestion records through bun. Lifecycle methods load
// the row, apply the domain transition, and write the result in one call.
type RecordStore struct {
	db   *bun.DB
	repo repository.Repository[*ingestionRecordRow]
}

func NewRecordStore(db *bun.DB) (*RecordStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*ingestionRecordRow](db, ingestionRecordHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid ingestion record repository wiring: %w", err)
		}
	}
	return &RecordStore{db: db, repo: repo}, nil
}

func (s *RecordStore) Create(ctx context.Context, in core.CreateRecordInput) (core.IngestionRecord, error) {
	if s == nil || s.db == nil {
		return core.IngestionRecord{}, fmt.Errorf("sqlstore: record store is not configured")
	}
	provider := strings.TrimSpace(in.Provider)
	if provider == "" {
		return core.IngestionRecord{}, fmt.Errorf("sqlstore: record provider is required")
	}
	now := time.Now().UTC()
	row := &ingestionRecordRow{
		ID:           uuid.NewString(),
		ExternalUUID: core.NewExternalUUID(),
		Provider:     provider,
		EventType:    strings.TrimSpace(in.EventType),
		ExternalID:   strings.TrimSpace(in.ExternalID),
		Headers:      copyStringMap(in.Headers),
		Payload:      copyAnyMap(in.Payload),
		Status:       string(core.DeliveryStatusPending),
		Attempts:     0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return core.IngestionRecord{}, goerrors.Wrap(err, goerrors.CategoryConflict, "sqlstore: duplicate ingestion record").
				WithCode(http.StatusConflict).
				WithTextCode(core.WebhookErrorConflict)
		}
		return core.IngestionRecord{}, err
	}
	return recordRowToDomain(row), nil
}

func (s *RecordStore) Get(ctx context.Context, id string) (core.IngestionRecord, error) {
	row, err := s.getRow(ctx, "id", id)
	if err != nil {
		return core.IngestionRecord{}, err
	}
	return recordRowToDomain(row), nil
}

func (s *RecordStore) GetByExternalUUID(ctx context.Context, externalUUID string) (core.IngestionRecord, error) {
	row, err := s.getRow(ctx, "external_uuid", externalUUID)
	if err != nil {
		return core.IngestionRecord{}, err
	}
	return recordRowToDomain(row), nil
}

func (s *RecordStore) List(ctx context.Context, filter core.RecordFilter) ([]core.IngestionRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: record store is not configured")
	}
	var rows []ingestionRecordRow
	query := s.db.NewSelect().Model(&rows).Order("created_at DESC")
	if provider := strings.TrimSpace(filter.Provider); provider != "" {
		query = query.Where("?TableAlias.provider = ?", provider)
	}
	if filter.Status != "" {
		query = query.Where("?TableAlias.status = ?", string(filter.Status))
	}
	if !filter.OlderThan.IsZero() {
		query = query.Where("?TableAlias.created_at < ?", filter.OlderThan.UTC())
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	records := make([]core.IngestionRecord, 0, len(rows))
	for i := range rows {
		records = append(records, recordRowToDomain(&rows[i]))
	}
	return records, nil
}

func (s *RecordStore) BeginProcessing(ctx context.Context, id string) (core.IngestionRecord, error) {
	return s.transition(ctx, id, func(record *core.IngestionRecord, now time.Time) error {
		return record.BeginProcessing(now)
	})
}

func (s *RecordStore) CompleteProcessing(ctx context.Context, id string) (core.IngestionRecord, error) {
	return s.transition(ctx, id, func(record *core.IngestionRecord, now time.Time) error {
		return record.CompleteProcessing(now)
	})
}

func (s *RecordStore) FailProcessing(ctx context.Context, id string, message string) (core.IngestionRecord, error) {
	return s.transition(ctx, id, func(record *core.IngestionRecord, now time.Time) error {
		record.FailProcessing(message, now)
		return nil
	})
}

func (s *RecordStore) ResetForRetry(ctx context.Context, id string) (core.IngestionRecord, error) {
	return s.transition(ctx, id, func(record *core.IngestionRecord, now time.Time) error {
		record.ResetForRetry(now)
		return nil
	})
}

func (s *RecordStore) Prune(ctx context.Context, filter core.PruneFilter) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: record store is not configured")
	}
	if filter.OlderThan.IsZero() {
		return 0, fmt.Errorf("sqlstore: prune cutoff is required")
	}

	if filter.DryRun {
		query := s.db.NewSelect().
			Model((*ingestionRecordRow)(nil)).
			Where("?TableAlias.created_at < ?", filter.OlderThan.UTC())
		if provider := strings.TrimSpace(filter.Provider); provider != "" {
			query = query.Where("?TableAlias.provider = ?", provider)
		}
		if filter.Status != "" {
			query = query.Where("?TableAlias.status = ?", string(filter.Status))
		}
		return query.Count(ctx)
	}

	query := s.db.NewDelete().
		Model((*ingestionRecordRow)(nil)).
		Where("created_at < ?", filter.OlderThan.UTC())
	if provider := strings.TrimSpace(filter.Provider); provider != "" {
		query = query.Where("provider = ?", provider)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	result, err := query.Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *RecordStore) transition(
	ctx context.Context,
	id string,
	apply func(record *core.IngestionRecord, now time.Time) error,
) (core.IngestionRecord, error) {
	if s == nil || s.db == nil {
		return core.IngestionRecord{}, fmt.Errorf("sqlstore: record store is not configured")
	}
	row, err := s.getRow(ctx, "id", id)
	if err != nil {
		return core.IngestionRecord{}, err
	}
	record := recordRowToDomain(row)
	now := time.Now().UTC()
	if err := apply(&record, now); err != nil {
		return core.IngestionRecord{}, err
	}

	_, err = s.db.NewUpdate().
		Model((*ingestionRecordRow)(nil)).
		Set("status = ?", string(record.Status)).
		Set("error_message = ?", record.ErrorMessage).
		Set("attempts = ?", record.Attempts).
		Set("processed_at = ?", record.ProcessedAt).
		Set("updated_at = ?", record.UpdatedAt.UTC()).
		Where("id = ?", row.ID).
		Exec(ctx)
	if err != nil {
		return core.IngestionRecord{}, err
	}
	return record, nil
}

func (s *RecordStore) getRow(ctx context.Context, column string, value string) (*ingestionRecordRow, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: record store is not configured")
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("sqlstore: record %s is required", column)
	}
	row := &ingestionRecordRow{}
	err := s.db.NewSelect().
		Model(row).
		Where("?TableAlias."+column+" = ?", value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrRecordNotFound
		}
		return nil, err
	}
	return row, nil
}

func recordRowToDomain(row *ingestionRecordRow) core.IngestionRecord {
	if row == nil {
		return core.IngestionRecord{}
	}
	record := core.IngestionRecord{
		ID:           row.ID,
		ExternalUUID: row.ExternalUUID,
		Provider:     row.Provider,
		EventType:    row.EventType,
		ExternalID:   row.ExternalID,
		Headers:      copyStringMap(row.Headers),
		Payload:      copyAnyMap(row.Payload),
		Status:       core.DeliveryStatus(row.Status),
		ErrorMessage: row.ErrorMessage,
		Attempts:     row.Attempts,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
	if row.ProcessedAt != nil {
		value := *row.ProcessedAt
		record.ProcessedAt = &value
	}
	return record
}

func copyStringMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

var _ core.RecordStore = (*RecordStore)(nil)
