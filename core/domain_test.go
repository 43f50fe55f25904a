package core

import (
	"errors"
	"testing"
	"time"
)

func TestIngestionRecordLifecycle(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	record := IngestionRecord{Status: DeliveryStatusPending}

	if err := record.BeginProcessing(now); err != nil {
		t.Fatalf("begin processing: %v", err)
	}
	if record.Status != DeliveryStatusProcessing {
		t.Fatalf("expected processing, got %s", record.Status)
	}
	if record.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", record.Attempts)
	}

	if err := record.CompleteProcessing(now.Add(time.Second)); err != nil {
		t.Fatalf("complete processing: %v", err)
	}
	if record.Status != DeliveryStatusProcessed {
		t.Fatalf("expected processed, got %s", record.Status)
	}
	if record.ProcessedAt == nil || !record.ProcessedAt.Equal(now.Add(time.Second)) {
		t.Fatalf("expected processed_at stamp, got %v", record.ProcessedAt)
	}
}

func TestBeginProcessingRejectsProcessed(t *testing.T) {
	record := IngestionRecord{Status: DeliveryStatusProcessed}
	err := record.BeginProcessing(time.Now().UTC())
	if !errors.Is(err, ErrInvalidDeliveryStatusTransition) {
		t.Fatalf("expected invalid transition error, got %v", err)
	}
	if record.Attempts != 0 {
		t.Fatalf("attempts must not change on rejected transition, got %d", record.Attempts)
	}
}

func TestBeginProcessingAllowedFromFailed(t *testing.T) {
	record := IngestionRecord{Status: DeliveryStatusFailed, Attempts: 2}
	if err := record.BeginProcessing(time.Now().UTC()); err != nil {
		t.Fatalf("begin processing from failed: %v", err)
	}
	if record.Attempts != 3 {
		t.Fatalf("expected attempts to increment to 3, got %d", record.Attempts)
	}
}

func TestCompleteProcessingRequiresProcessing(t *testing.T) {
	record := IngestionRecord{Status: DeliveryStatusPending}
	err := record.CompleteProcessing(time.Now().UTC())
	if !errors.Is(err, ErrInvalidDeliveryStatusTransition) {
		t.Fatalf("expected invalid transition error, got %v", err)
	}
}

func TestFailProcessingFromAnyStatus(t *testing.T) {
	now := time.Now().UTC()
	for _, status := range []DeliveryStatus{
		DeliveryStatusPending,
		DeliveryStatusProcessing,
		DeliveryStatusProcessed,
		DeliveryStatusFailed,
	} {
		record := IngestionRecord{Status: status, Attempts: 1}
		record.FailProcessing("handler exploded", now)
		if record.Status != DeliveryStatusFailed {
			t.Fatalf("expected failed from %s, got %s", status, record.Status)
		}
		if record.ErrorMessage != "handler exploded" {
			t.Fatalf("expected error message, got %q", record.ErrorMessage)
		}
		if record.Attempts != 1 {
			t.Fatalf("fail must not touch attempts, got %d", record.Attempts)
		}
	}
}

func TestResetForRetryPreservesHistory(t *testing.T) {
	processedAt := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	record := IngestionRecord{
		Status:       DeliveryStatusFailed,
		ErrorMessage: "boom",
		Attempts:     3,
		ProcessedAt:  &processedAt,
	}
	record.ResetForRetry(time.Now().UTC())
	if record.Status != DeliveryStatusPending {
		t.Fatalf("expected pending, got %s", record.Status)
	}
	if record.ErrorMessage != "" {
		t.Fatalf("expected cleared error message, got %q", record.ErrorMessage)
	}
	if record.Attempts != 3 {
		t.Fatalf("expected attempts preserved, got %d", record.Attempts)
	}
	if record.ProcessedAt == nil || !record.ProcessedAt.Equal(processedAt) {
		t.Fatalf("expected processed_at preserved, got %v", record.ProcessedAt)
	}
}

func TestParseDeliveryStatus(t *testing.T) {
	status, err := ParseDeliveryStatus(" Processed ")
	if err != nil {
		t.Fatalf("parse delivery status: %v", err)
	}
	if status != DeliveryStatusProcessed {
		t.Fatalf("expected processed, got %s", status)
	}
	if _, err := ParseDeliveryStatus("archived"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}
