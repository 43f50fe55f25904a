package drivers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/goliatone/go-webhooks/core"
)

func signGitHubBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func githubRequest(secret string, event string, body []byte) core.RawRequest {
	return core.RawRequest{
		Body: body,
		Headers: map[string]string{
			"X-Hub-Signature-256": signGitHubBody(secret, body),
			"X-GitHub-Event":      event,
			"X-GitHub-Delivery":   "72d3162e-cc78-11e3-81ab-4c9367dc0958",
			"Content-Type":        "application/json",
		},
	}
}

func newGitHubForTest(t *testing.T) core.Driver {
	t.Helper()
	driver, err := NewGitHubDriver(core.ProviderConfig{Secret: "gh_secret"})
	if err != nil {
		t.Fatalf("new github driver: %v", err)
	}
	return driver
}

func TestGitHubVerifyValidSignature(t *testing.T) {
	driver := newGitHubForTest(t)
	req := githubRequest("gh_secret", "push", []byte(`{"ref":"refs/heads/main"}`))

	if err := driver.Verify(context.Background(), req); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestGitHubVerifyRejectsSingleByteMutation(t *testing.T) {
	driver := newGitHubForTest(t)
	body := []byte(`{"ref":"refs/heads/main"}`)
	req := githubRequest("gh_secret", "push", body)
	mutated := append([]byte(nil), body...)
	mutated[0] ^= 0x01
	req.Body = mutated

	if err := driver.Verify(context.Background(), req); err == nil {
		t.Fatal("expected mutated body to fail verification")
	}
}

func TestGitHubVerifyRequiresPrefix(t *testing.T) {
	driver := newGitHubForTest(t)
	req := githubRequest("gh_secret", "push", []byte(`{}`))
	req.Headers["X-Hub-Signature-256"] = "deadbeef"

	if err := driver.Verify(context.Background(), req); err == nil {
		t.Fatal("expected signature without prefix to fail")
	}
}

func TestGitHubExtractQualifiesEventWithAction(t *testing.T) {
	driver := newGitHubForTest(t)
	req := githubRequest("gh_secret", "issues", []byte(`{"action":"opened","issue":{"number":7}}`))

	event, err := driver.Extract(context.Background(), req)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if event.EventType != "issues.opened" {
		t.Fatalf("expected issues.opened, got %s", event.EventType)
	}
	if event.ExternalID != "72d3162e-cc78-11e3-81ab-4c9367dc0958" {
		t.Fatalf("expected delivery id, got %s", event.ExternalID)
	}
	if event.Headers["X-GitHub-Event"] != "issues" {
		t.Fatalf("expected event header retained, got %v", event.Headers)
	}
}

func TestGitHubExtractWithoutAction(t *testing.T) {
	driver := newGitHubForTest(t)
	req := githubRequest("gh_secret", "push", []byte(`{"ref":"refs/heads/main"}`))

	event, err := driver.Extract(context.Background(), req)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if event.EventType != "push" {
		t.Fatalf("expected push, got %s", event.EventType)
	}
}

func TestGitHubExtractRequiresEventHeader(t *testing.T) {
	driver := newGitHubForTest(t)
	req := githubRequest("gh_secret", "push", []byte(`{}`))
	delete(req.Headers, "X-GitHub-Event")

	if _, err := driver.Extract(context.Background(), req); err == nil {
		t.Fatal("expected missing event header to fail extraction")
	}
}
