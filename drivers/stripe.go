package drivers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-webhooks/core"
)

const stripeSignatureHeader = "Stripe-Signature"

// StripeDriver verifies the Stripe-Signature scheme: an HMAC-SHA256 over
// "{timestamp}.{body}" carried as v1 elements, with replay protection bounded
// by the configured tolerance.
type StripeDriver struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

func NewStripeDriver(cfg core.ProviderConfig) (core.Driver, error) {
	secret := cfg.ResolveSecret()
	if secret == "" {
		return nil, fmt.Errorf("drivers: stripe driver requires a secret")
	}
	return &StripeDriver{
		secret:    secret,
		tolerance: cfg.Tolerance(),
		now:       utcNow,
	}, nil
}

func (d *StripeDriver) Name() string { return DriverStripe }

func (d *StripeDriver) StorableHeaders() []string {
	return storableHeaders(stripeSignatureHeader)
}

func (d *StripeDriver) Verify(_ context.Context, req core.RawRequest) error {
	header := req.Header(stripeSignatureHeader)
	if header == "" {
		return fmt.Errorf("drivers: %s header is required", stripeSignatureHeader)
	}

	timestampRaw, candidates, err := parseStripeSignatureHeader(header)
	if err != nil {
		return err
	}

	timestampUnix, err := strconv.ParseInt(timestampRaw, 10, 64)
	if err != nil {
		return fmt.Errorf("drivers: invalid stripe signature timestamp: %w", err)
	}
	if !withinTolerance(d.now(), time.Unix(timestampUnix, 0), d.tolerance) {
		return fmt.Errorf("drivers: stripe signature timestamp outside tolerance")
	}

	signedPayload := timestampRaw + "." + string(req.Body)
	expected := computeHMAC(sha256Hash, d.secret, []byte(signedPayload))
	for _, candidate := range candidates {
		if compareHexSignature(candidate, expected) == nil {
			return nil
		}
	}
	return fmt.Errorf("drivers: signature verification failed")
}

func (d *StripeDriver) Extract(_ context.Context, req core.RawRequest) (core.ExtractedEvent, error) {
	payload, err := decodeJSONDocument(req.Body)
	if err != nil {
		return core.ExtractedEvent{}, err
	}
	eventType, _ := core.LookupString(payload, "type")
	externalID, _ := core.LookupString(payload, "id")
	return core.ExtractedEvent{
		EventType:  eventType,
		ExternalID: externalID,
		Payload:    payload,
		Headers:    collectHeaders(req, d.StorableHeaders()),
	}, nil
}

// parseStripeSignatureHeader splits "t=...,v1=...,v1=..." into the timestamp
// and the v1 signature candidates. Unknown schemes are ignored.
func parseStripeSignatureHeader(header string) (string, []string, error) {
	var timestamp string
	var candidates []string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch strings.TrimSpace(key) {
		case "t":
			timestamp = strings.TrimSpace(value)
		case "v1":
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				candidates = append(candidates, trimmed)
			}
		}
	}
	if timestamp == "" {
		return "", nil, fmt.Errorf("drivers: stripe signature timestamp is required")
	}
	if len(candidates) == 0 {
		return "", nil, fmt.Errorf("drivers: stripe signature is missing v1 element")
	}
	return timestamp, candidates, nil
}
