package drivers

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"strings"
	"time"

	"github.com/goliatone/go-webhooks/core"
)

const (
	DriverStripe = "stripe"
	DriverGitHub = "github"
	DriverSlack  = "slack"
	DriverTwilio = "twilio"
	DriverHMAC   = "hmac"
)

// Builtin is the factory table for the drivers shipped with the module. The
// registry resolves configured provider entries against these names.
func Builtin() map[string]core.DriverFactory {
	return map[string]core.DriverFactory{
		DriverStripe: NewStripeDriver,
		DriverGitHub: NewGitHubDriver,
		DriverSlack:  NewSlackDriver,
		DriverTwilio: NewTwilioDriver,
		DriverHMAC:   NewHMACDriver,
	}
}

// baseStorableHeaders is retained on every record regardless of driver.
var baseStorableHeaders = []string{"Content-Type", "User-Agent"}

func storableHeaders(extra ...string) []string {
	return append(append([]string(nil), baseStorableHeaders...), extra...)
}

// collectHeaders copies the allow-listed headers present on the request.
// Absent headers are omitted rather than stored empty.
func collectHeaders(req core.RawRequest, names []string) map[string]string {
	out := map[string]string{}
	for _, name := range names {
		if value := req.Header(name); value != "" {
			out[name] = value
		}
	}
	return out
}

func decodeJSONDocument(body []byte) (core.Document, error) {
	if len(body) == 0 {
		return core.Document{}, nil
	}
	var doc core.Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("drivers: decode json payload: %w", err)
	}
	return doc, nil
}

var (
	sha256Hash = func() hash.Hash { return sha256.New() }
	sha1Hash   = func() hash.Hash { return sha1.New() }
)

func hashFor(algorithm string) (func() hash.Hash, error) {
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case "", "sha256":
		return sha256.New, nil
	case "sha1":
		return sha1.New, nil
	case "sha512":
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("drivers: unsupported hmac algorithm %q", algorithm)
	}
}

func computeHMAC(newHash func() hash.Hash, secret string, payload []byte) []byte {
	mac := hmac.New(newHash, []byte(secret))
	_, _ = mac.Write(payload)
	return mac.Sum(nil)
}

func compareHexSignature(signature string, expected []byte) error {
	decoded, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return fmt.Errorf("drivers: decode hex signature: %w", err)
	}
	if subtle.ConstantTimeCompare(decoded, expected) != 1 {
		return fmt.Errorf("drivers: signature verification failed")
	}
	return nil
}

// withinTolerance bounds timestamp drift in either direction. The boundary
// value is accepted.
func withinTolerance(now time.Time, timestamp time.Time, tolerance time.Duration) bool {
	delta := now.Sub(timestamp)
	if delta < 0 {
		delta = -delta
	}
	return delta <= tolerance
}

func utcNow() time.Time {
	return time.Now().UTC()
}
