package drivers

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"sort"

	"github.com/goliatone/go-webhooks/core"
)

const twilioSignatureHeader = "X-Twilio-Signature"

// TwilioDriver verifies the X-Twilio-Signature scheme: a base64 HMAC-SHA1
// over the full request URL followed by every POST parameter, sorted by key,
// concatenated as key+value.
type TwilioDriver struct {
	authToken string
}

func NewTwilioDriver(cfg core.ProviderConfig) (core.Driver, error) {
	token := cfg.ResolveSecret()
	if token == "" {
		return nil, fmt.Errorf("drivers: twilio driver requires an auth token")
	}
	return &TwilioDriver{authToken: token}, nil
}

func (d *TwilioDriver) Name() string { return DriverTwilio }

func (d *TwilioDriver) StorableHeaders() []string {
	return storableHeaders(twilioSignatureHeader, "I-Twilio-Idempotency-Token")
}

func (d *TwilioDriver) Verify(_ context.Context, req core.RawRequest) error {
	signature := req.Header(twilioSignatureHeader)
	if signature == "" {
		return fmt.Errorf("drivers: %s header is required", twilioSignatureHeader)
	}
	decoded, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("drivers: decode base64 signature: %w", err)
	}
	expected := computeHMAC(sha1Hash, d.authToken, []byte(twilioSignedPayload(req)))
	if subtle.ConstantTimeCompare(decoded, expected) != 1 {
		return fmt.Errorf("drivers: signature verification failed")
	}
	return nil
}

// Extract classifies the form payload. Message callbacks map to
// "message.{status}", voice callbacks to "call.{status}", and bare status
// callbacks fall back to "status_callback".
func (d *TwilioDriver) Extract(_ context.Context, req core.RawRequest) (core.ExtractedEvent, error) {
	form := req.FormValues()
	payload := core.Document{}
	for key, values := range form {
		if len(values) > 0 {
			payload[key] = values[0]
		}
	}

	eventType := ""
	switch {
	case form.Get("MessageSid") != "" || form.Get("SmsSid") != "":
		status := firstNonEmpty(form.Get("MessageStatus"), form.Get("SmsStatus"), "received")
		eventType = "message." + status
	case form.Get("CallSid") != "":
		status := firstNonEmpty(form.Get("CallStatus"), "incoming")
		eventType = "call." + status
	case form.Get("CallbackUrl") != "":
		eventType = "status_callback"
	}

	externalID := firstNonEmpty(form.Get("MessageSid"), form.Get("CallSid"), form.Get("SmsSid"))
	return core.ExtractedEvent{
		EventType:  eventType,
		ExternalID: externalID,
		Payload:    payload,
		Headers:    collectHeaders(req, d.StorableHeaders()),
	}, nil
}

// twilioSignedPayload rebuilds the exact byte sequence Twilio signs.
func twilioSignedPayload(req core.RawRequest) string {
	form := req.FormValues()
	keys := make([]string, 0, len(form))
	for key := range form {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	payload := req.URL
	for _, key := range keys {
		for _, value := range form[key] {
			payload += key + value
		}
	}
	return payload
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
