package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidDeliveryStatusTransition = errors.New("core: invalid delivery status transition")
	ErrRecordNotFound                  = errors.New("core: ingestion record not found")
)

type DeliveryStatus string

const (
	DeliveryStatusPending    DeliveryStatus = "pending"
	DeliveryStatusProcessing DeliveryStatus = "processing"
	DeliveryStatusProcessed  DeliveryStatus = "processed"
	DeliveryStatusFailed     DeliveryStatus = "failed"
)

// IngestionRecord is the durable representation of one received webhook.
// Status is the source of truth for operational tooling; every transition is
// persisted synchronously by the RecordStore.
type IngestionRecord struct {
	ID           string
	ExternalUUID string
	Provider     string
	EventType    string
	ExternalID   string
	Headers      map[string]string
	Payload      Document
	Status       DeliveryStatus
	ErrorMessage string
	Attempts     int
	ProcessedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// BeginProcessing moves the record into processing and increments the attempt
// counter. Allowed from pending and failed.
func (r *IngestionRecord) BeginProcessing(now time.Time) error {
	if r == nil {
		return nil
	}
	if !deliveryTransitionAllowed(r.Status, DeliveryStatusProcessing) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidDeliveryStatusTransition, r.Status, DeliveryStatusProcessing)
	}
	r.Status = DeliveryStatusProcessing
	r.Attempts++
	r.UpdatedAt = now
	return nil
}

// CompleteProcessing marks the record processed, stamps ProcessedAt and clears
// the error message.
func (r *IngestionRecord) CompleteProcessing(now time.Time) error {
	if r == nil {
		return nil
	}
	if !deliveryTransitionAllowed(r.Status, DeliveryStatusProcessed) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidDeliveryStatusTransition, r.Status, DeliveryStatusProcessed)
	}
	r.Status = DeliveryStatusProcessed
	processedAt := now
	r.ProcessedAt = &processedAt
	r.ErrorMessage = ""
	r.UpdatedAt = now
	return nil
}

// FailProcessing records a failure. Allowed from any state; ProcessedAt and
// Attempts are left untouched.
func (r *IngestionRecord) FailProcessing(message string, now time.Time) {
	if r == nil {
		return
	}
	r.Status = DeliveryStatusFailed
	r.ErrorMessage = strings.TrimSpace(message)
	r.UpdatedAt = now
}

// ResetForRetry returns the record to pending and clears the error message.
// Attempts and ProcessedAt are preserved so operational history survives a
// replay.
func (r *IngestionRecord) ResetForRetry(now time.Time) {
	if r == nil {
		return
	}
	r.Status = DeliveryStatusPending
	r.ErrorMessage = ""
	r.UpdatedAt = now
}

func deliveryTransitionAllowed(current, next DeliveryStatus) bool {
	allowed := map[DeliveryStatus]map[DeliveryStatus]struct{}{
		DeliveryStatusPending: {
			DeliveryStatusProcessing: {},
			DeliveryStatusFailed:     {},
		},
		DeliveryStatusProcessing: {
			DeliveryStatusProcessed: {},
			DeliveryStatusFailed:    {},
		},
		DeliveryStatusFailed: {
			DeliveryStatusProcessing: {},
			DeliveryStatusPending:    {},
		},
		DeliveryStatusProcessed: {
			DeliveryStatusPending: {},
			DeliveryStatusFailed:  {},
		},
	}
	_, ok := allowed[current][next]
	return ok
}

func ParseDeliveryStatus(value string) (DeliveryStatus, error) {
	status := DeliveryStatus(strings.TrimSpace(strings.ToLower(value)))
	switch status {
	case DeliveryStatusPending, DeliveryStatusProcessing, DeliveryStatusProcessed, DeliveryStatusFailed:
		return status, nil
	default:
		return "", fmt.Errorf("core: unknown delivery status %q", value)
	}
}
