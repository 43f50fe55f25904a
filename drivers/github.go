package drivers

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-webhooks/core"
)

const (
	githubSignatureHeader = "X-Hub-Signature-256"
	githubEventHeader     = "X-GitHub-Event"
	githubDeliveryHeader  = "X-GitHub-Delivery"
	githubSignaturePrefix = "sha256="
)

// GitHubDriver verifies the X-Hub-Signature-256 scheme: a hex HMAC-SHA256
// over the raw body, prefixed with "sha256=".
type GitHubDriver struct {
	secret string
}

func NewGitHubDriver(cfg core.ProviderConfig) (core.Driver, error) {
	secret := cfg.ResolveSecret()
	if secret == "" {
		return nil, fmt.Errorf("drivers: github driver requires a secret")
	}
	return &GitHubDriver{secret: secret}, nil
}

func (d *GitHubDriver) Name() string { return DriverGitHub }

func (d *GitHubDriver) StorableHeaders() []string {
	return storableHeaders(githubEventHeader, githubDeliveryHeader, githubSignatureHeader)
}

func (d *GitHubDriver) Verify(_ context.Context, req core.RawRequest) error {
	header := req.Header(githubSignatureHeader)
	if header == "" {
		return fmt.Errorf("drivers: %s header is required", githubSignatureHeader)
	}
	if !strings.HasPrefix(header, githubSignaturePrefix) {
		return fmt.Errorf("drivers: github signature must carry the %s prefix", githubSignaturePrefix)
	}
	signature := strings.TrimPrefix(header, githubSignaturePrefix)
	expected := computeHMAC(sha256Hash, d.secret, req.Body)
	return compareHexSignature(signature, expected)
}

// Extract builds the event type from the X-GitHub-Event header, qualified
// with the payload action when one is present, e.g. "issues.opened".
func (d *GitHubDriver) Extract(_ context.Context, req core.RawRequest) (core.ExtractedEvent, error) {
	event := req.Header(githubEventHeader)
	if event == "" {
		return core.ExtractedEvent{}, fmt.Errorf("drivers: %s header is required", githubEventHeader)
	}
	payload, err := decodeJSONDocument(req.Body)
	if err != nil {
		return core.ExtractedEvent{}, err
	}
	eventType := event
	if action, ok := core.LookupString(payload, "action"); ok {
		eventType = event + "." + action
	}
	return core.ExtractedEvent{
		EventType:  eventType,
		ExternalID: req.Header(githubDeliveryHeader),
		Payload:    payload,
		Headers:    collectHeaders(req, d.StorableHeaders()),
	}, nil
}
