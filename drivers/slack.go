package drivers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-webhooks/core"
)

const (
	slackSignatureHeader = "X-Slack-Signature"
	slackTimestampHeader = "X-Slack-Request-Timestamp"
	slackSignaturePrefix = "v0="
)

// SlackDriver verifies the Slack v0 scheme: a hex HMAC-SHA256 over
// "v0:{timestamp}:{body}", with replay protection on the timestamp header.
// URL verification handshakes surface as a challenge instead of an event.
type SlackDriver struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

func NewSlackDriver(cfg core.ProviderConfig) (core.Driver, error) {
	secret := cfg.ResolveSecret()
	if secret == "" {
		return nil, fmt.Errorf("drivers: slack driver requires a signing secret")
	}
	return &SlackDriver{
		secret:    secret,
		tolerance: cfg.Tolerance(),
		now:       utcNow,
	}, nil
}

func (d *SlackDriver) Name() string { return DriverSlack }

func (d *SlackDriver) StorableHeaders() []string {
	return storableHeaders(slackSignatureHeader, slackTimestampHeader, "X-Slack-Retry-Num", "X-Slack-Retry-Reason")
}

func (d *SlackDriver) Verify(_ context.Context, req core.RawRequest) error {
	signature := req.Header(slackSignatureHeader)
	if signature == "" {
		return fmt.Errorf("drivers: %s header is required", slackSignatureHeader)
	}
	if !strings.HasPrefix(signature, slackSignaturePrefix) {
		return fmt.Errorf("drivers: slack signature must carry the %s prefix", slackSignaturePrefix)
	}
	timestampRaw := req.Header(slackTimestampHeader)
	if timestampRaw == "" {
		return fmt.Errorf("drivers: %s header is required", slackTimestampHeader)
	}
	timestampUnix, err := strconv.ParseInt(timestampRaw, 10, 64)
	if err != nil {
		return fmt.Errorf("drivers: invalid slack request timestamp: %w", err)
	}
	if !withinTolerance(d.now(), time.Unix(timestampUnix, 0), d.tolerance) {
		return fmt.Errorf("drivers: slack request timestamp outside tolerance")
	}

	base := "v0:" + timestampRaw + ":" + string(req.Body)
	expected := computeHMAC(sha256Hash, d.secret, []byte(base))
	return compareHexSignature(strings.TrimPrefix(signature, slackSignaturePrefix), expected)
}

// Extract handles both JSON event deliveries and form-encoded interactive
// payloads, where the JSON document rides in the "payload" form field.
func (d *SlackDriver) Extract(_ context.Context, req core.RawRequest) (core.ExtractedEvent, error) {
	body := req.Body
	embedded := false
	contentType := strings.ToLower(req.Header("Content-Type"))
	if strings.Contains(contentType, "application/x-www-form-urlencoded") {
		if encoded := req.FormValues().Get("payload"); encoded != "" {
			body = []byte(encoded)
			embedded = true
		}
	}

	payload, err := decodeJSONDocument(body)
	if err != nil {
		if !embedded {
			return core.ExtractedEvent{}, err
		}
		// A signed interactive delivery with a malformed embedded document
		// still gets stored; the raw form fields stand in as the payload.
		payload = formDocument(req)
	}

	payloadType, _ := core.LookupString(payload, "type")
	if payloadType == "url_verification" {
		challenge, ok := core.LookupString(payload, "challenge")
		if !ok {
			return core.ExtractedEvent{}, fmt.Errorf("drivers: slack url_verification payload is missing challenge")
		}
		return core.ExtractedEvent{Challenge: challenge}, nil
	}

	eventType := payloadType
	if payloadType == "event_callback" {
		if inner, ok := core.LookupString(payload, "event.type"); ok {
			eventType = inner
		}
	}

	externalID := ""
	for _, path := range []string{"event_id", "event.event_ts", "trigger_id"} {
		if value, ok := core.LookupString(payload, path); ok {
			externalID = value
			break
		}
	}

	return core.ExtractedEvent{
		EventType:  eventType,
		ExternalID: externalID,
		Payload:    payload,
		Headers:    collectHeaders(req, d.StorableHeaders()),
	}, nil
}

func formDocument(req core.RawRequest) core.Document {
	doc := core.Document{}
	for key, values := range req.FormValues() {
		if len(values) > 0 {
			doc[key] = values[0]
		}
	}
	return doc
}
