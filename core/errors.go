package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	WebhookErrorBadInput         = "WEBHOOK_BAD_INPUT"
	WebhookErrorSignatureInvalid = "WEBHOOK_SIGNATURE_INVALID"
	WebhookErrorProviderNotFound = "WEBHOOK_PROVIDER_NOT_FOUND"
	WebhookErrorProcessingFailed = "WEBHOOK_PROCESSING_FAILED"
	WebhookErrorConflict         = "WEBHOOK_CONFLICT"
	WebhookErrorInternal         = "WEBHOOK_INTERNAL_ERROR"
)

// NewSignatureError covers every authentication failure: missing headers,
// unset secrets, malformed signatures, stale timestamps, mismatches. Always
// terminal for the request; no record is persisted after one.
func NewSignatureError(reason string, metadata map[string]any) error {
	err := goerrors.New(reason, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(WebhookErrorSignatureInvalid)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func NewUnknownProviderError(provider string) error {
	return goerrors.New("core: unknown webhook provider: "+strings.TrimSpace(provider), goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(WebhookErrorProviderNotFound).
		WithMetadata(map[string]any{"provider": strings.TrimSpace(provider)})
}

func NewProcessingError(source error, message string, metadata map[string]any) error {
	err := goerrors.Wrap(source, goerrors.CategoryOperation, message).
		WithCode(http.StatusBadGateway).
		WithTextCode(WebhookErrorProcessingFailed)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func IsSignatureError(err error) bool {
	return hasTextCode(err, WebhookErrorSignatureInvalid)
}

func IsUnknownProviderError(err error) bool {
	return hasTextCode(err, WebhookErrorProviderNotFound)
}

func hasTextCode(err error, textCode string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == textCode
}

func webhookErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureWebhookErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signature"):
		return ensureWebhookErrorEnvelope(
			goerrors.New(err.Error(), goerrors.CategoryAuth).WithTextCode(WebhookErrorSignatureInvalid),
		)
	case strings.Contains(msg, "unknown") && strings.Contains(msg, "provider"):
		return ensureWebhookErrorEnvelope(
			goerrors.New(err.Error(), goerrors.CategoryNotFound).WithTextCode(WebhookErrorProviderNotFound),
		)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return ensureWebhookErrorEnvelope(
			goerrors.New(err.Error(), goerrors.CategoryBadInput).WithTextCode(WebhookErrorBadInput),
		)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureWebhookErrorEnvelope(mapped)
}

func ensureWebhookErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = webhookHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultWebhookTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultWebhookTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return WebhookErrorBadInput
	case goerrors.CategoryNotFound:
		return WebhookErrorProviderNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return WebhookErrorSignatureInvalid
	case goerrors.CategoryConflict:
		return WebhookErrorConflict
	case goerrors.CategoryOperation:
		return WebhookErrorProcessingFailed
	default:
		return WebhookErrorInternal
	}
}

func webhookHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryOperation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
