package drivers

import (
	"context"
	"fmt"
	"hash"
	"strings"

	"github.com/goliatone/go-webhooks/core"
)

const (
	defaultHMACHeader   = "X-Webhook-Signature"
	defaultHMACEventKey = "event"
	defaultHMACIDKey    = "id"
)

// HMACDriver is the configurable generic scheme: a hex HMAC digest of the raw
// body carried in a single header, with optional prefix stripping. Event
// metadata comes from configured headers or payload paths.
type HMACDriver struct {
	secret      string
	header      string
	prefix      string
	newHash     func() hash.Hash
	eventKey    string
	idKey       string
	eventHeader string
	idHeader    string
}

func NewHMACDriver(cfg core.ProviderConfig) (core.Driver, error) {
	secret := cfg.ResolveSecret()
	if secret == "" {
		return nil, fmt.Errorf("drivers: hmac driver requires a secret")
	}
	newHash, err := hashFor(cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	driver := &HMACDriver{
		secret:      secret,
		header:      strings.TrimSpace(cfg.Header),
		prefix:      strings.TrimSpace(cfg.Prefix),
		newHash:     newHash,
		eventKey:    strings.TrimSpace(cfg.EventKey),
		idKey:       strings.TrimSpace(cfg.IDKey),
		eventHeader: strings.TrimSpace(cfg.EventHeader),
		idHeader:    strings.TrimSpace(cfg.IDHeader),
	}
	if driver.header == "" {
		driver.header = defaultHMACHeader
	}
	if driver.eventKey == "" {
		driver.eventKey = defaultHMACEventKey
	}
	if driver.idKey == "" {
		driver.idKey = defaultHMACIDKey
	}
	return driver, nil
}

func (d *HMACDriver) Name() string { return DriverHMAC }

func (d *HMACDriver) StorableHeaders() []string {
	names := storableHeaders(d.header)
	if d.eventHeader != "" {
		names = append(names, d.eventHeader)
	}
	if d.idHeader != "" {
		names = append(names, d.idHeader)
	}
	return names
}

func (d *HMACDriver) Verify(_ context.Context, req core.RawRequest) error {
	header := req.Header(d.header)
	if header == "" {
		return fmt.Errorf("drivers: %s header is required", d.header)
	}
	signature := header
	if d.prefix != "" {
		if !strings.HasPrefix(header, d.prefix) {
			return fmt.Errorf("drivers: signature must carry the %s prefix", d.prefix)
		}
		signature = strings.TrimPrefix(header, d.prefix)
	}
	expected := computeHMAC(d.newHash, d.secret, req.Body)
	return compareHexSignature(signature, expected)
}

func (d *HMACDriver) Extract(_ context.Context, req core.RawRequest) (core.ExtractedEvent, error) {
	payload, err := decodeJSONDocument(req.Body)
	if err != nil {
		// A configured event header still identifies non-JSON deliveries.
		if d.eventHeader == "" {
			return core.ExtractedEvent{}, err
		}
		payload = nil
	}

	eventType := ""
	if d.eventHeader != "" {
		eventType = req.Header(d.eventHeader)
	}
	if eventType == "" {
		eventType, _ = core.LookupString(payload, d.eventKey)
	}

	externalID := ""
	if d.idHeader != "" {
		externalID = req.Header(d.idHeader)
	}
	if externalID == "" {
		externalID, _ = core.LookupString(payload, d.idKey)
	}

	return core.ExtractedEvent{
		EventType:  eventType,
		ExternalID: externalID,
		Payload:    payload,
		Headers:    collectHeaders(req, d.StorableHeaders()),
	}, nil
}
