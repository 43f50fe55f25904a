package core

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestNewSignatureError(t *testing.T) {
	err := NewSignatureError("timestamp outside tolerance", map[string]any{"provider": "stripe"})
	if !IsSignatureError(err) {
		t.Fatal("expected signature error")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatal("expected rich error")
	}
	if richErr.Category != goerrors.CategoryAuth {
		t.Fatalf("expected auth category, got %s", richErr.Category)
	}
	if richErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", richErr.Code)
	}
	if richErr.Metadata["provider"] != "stripe" {
		t.Fatalf("expected provider metadata, got %v", richErr.Metadata)
	}
}

func TestNewUnknownProviderError(t *testing.T) {
	err := NewUnknownProviderError("  acme  ")
	if !IsUnknownProviderError(err) {
		t.Fatal("expected unknown provider error")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatal("expected rich error")
	}
	if richErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", richErr.Code)
	}
	if richErr.Metadata["provider"] != "acme" {
		t.Fatalf("expected trimmed provider metadata, got %v", richErr.Metadata)
	}
}

func TestNewProcessingErrorKeepsCause(t *testing.T) {
	cause := errors.New("handler exploded")
	err := NewProcessingError(cause, "delivery failed", map[string]any{"record_id": "1"})
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to survive wrapping")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatal("expected rich error")
	}
	if richErr.TextCode != WebhookErrorProcessingFailed {
		t.Fatalf("expected processing text code, got %s", richErr.TextCode)
	}
}

func TestWebhookErrorMapperPlainErrors(t *testing.T) {
	cases := []struct {
		err      error
		textCode string
		code     int
	}{
		{fmt.Errorf("signature mismatch"), WebhookErrorSignatureInvalid, http.StatusUnauthorized},
		{fmt.Errorf("unknown webhook provider: acme"), WebhookErrorProviderNotFound, http.StatusNotFound},
		{fmt.Errorf("provider is required"), WebhookErrorBadInput, http.StatusBadRequest},
	}
	for _, tc := range cases {
		mapped := webhookErrorMapper(tc.err)
		if mapped == nil {
			t.Fatalf("expected mapped error for %v", tc.err)
		}
		if mapped.TextCode != tc.textCode {
			t.Fatalf("%v: expected %s, got %s", tc.err, tc.textCode, mapped.TextCode)
		}
		if mapped.Code != tc.code {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.code, mapped.Code)
		}
	}
}

func TestWebhookErrorMapperEnvelopesRichErrors(t *testing.T) {
	base := goerrors.New("conflict on external id", goerrors.CategoryConflict)
	mapped := webhookErrorMapper(base)
	if mapped.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", mapped.Code)
	}
	if mapped.TextCode != WebhookErrorConflict {
		t.Fatalf("expected conflict text code, got %s", mapped.TextCode)
	}
}
