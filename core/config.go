package core

import (
	"fmt"
	"strings"
	"time"
)

const DefaultSignatureTolerance = 300 * time.Second

// ProviderConfig is the configuration surface for a single webhook provider.
// Driver names resolve through the DriverRegistry; the remaining fields are
// interpreted by the resolved driver.
type ProviderConfig struct {
	Driver        string `koanf:"driver" mapstructure:"driver"`
	Secret        string `koanf:"secret" mapstructure:"secret"`
	SigningSecret string `koanf:"signing_secret" mapstructure:"signing_secret"`
	AuthToken     string `koanf:"auth_token" mapstructure:"auth_token"`
	// ToleranceSeconds bounds timestamp drift for drivers with replay
	// protection. Zero falls back to DefaultSignatureTolerance.
	ToleranceSeconds int            `koanf:"tolerance" mapstructure:"tolerance"`
	Algorithm        string         `koanf:"algorithm" mapstructure:"algorithm"`
	Header           string         `koanf:"header" mapstructure:"header"`
	Prefix           string         `koanf:"prefix" mapstructure:"prefix"`
	EventKey         string         `koanf:"event_key" mapstructure:"event_key"`
	IDKey            string         `koanf:"id_key" mapstructure:"id_key"`
	EventHeader      string         `koanf:"event_header" mapstructure:"event_header"`
	IDHeader         string         `koanf:"id_header" mapstructure:"id_header"`
	Extra            map[string]any `koanf:"extra" mapstructure:"extra"`
}

// ResolveSecret returns the shared secret under whichever key the operator
// configured it: secret, then signing_secret, then auth_token.
func (c ProviderConfig) ResolveSecret() string {
	for _, candidate := range []string{c.Secret, c.SigningSecret, c.AuthToken} {
		if trimmed := strings.TrimSpace(candidate); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func (c ProviderConfig) Tolerance() time.Duration {
	if c.ToleranceSeconds > 0 {
		return time.Duration(c.ToleranceSeconds) * time.Second
	}
	return DefaultSignatureTolerance
}

type Config struct {
	ServiceName string `koanf:"service_name" mapstructure:"service_name"`
	// StorePayload disables payload persistence when false; headers and
	// metadata are still stored.
	StorePayload  bool                      `koanf:"store_payload" mapstructure:"store_payload"`
	RetentionDays int                       `koanf:"retention_days" mapstructure:"retention_days"`
	Providers     map[string]ProviderConfig `koanf:"providers" mapstructure:"providers"`
	// EventMap routes "{provider}.{eventType}" keys to specialized signal
	// names emitted by the delivery pipeline alongside the generic signals.
	EventMap map[string]string `koanf:"event_map" mapstructure:"event_map"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:  "webhooks",
		StorePayload: true,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("core: retention_days must not be negative")
	}
	for name, provider := range c.Providers {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("core: provider name is required")
		}
		if strings.TrimSpace(provider.Driver) == "" {
			return fmt.Errorf("core: provider %q requires a driver", name)
		}
	}
	return nil
}

// Provider returns the configuration entry for a provider name as it appears
// in the inbound URL path.
func (c Config) Provider(name string) (ProviderConfig, bool) {
	cfg, ok := c.Providers[strings.TrimSpace(name)]
	return cfg, ok
}

// SignalName resolves the specialized signal mapped to a provider/event pair.
func (c Config) SignalName(provider string, eventType string) (string, bool) {
	provider = strings.TrimSpace(provider)
	eventType = strings.TrimSpace(eventType)
	if provider == "" || eventType == "" || len(c.EventMap) == 0 {
		return "", false
	}
	signal, ok := c.EventMap[provider+"."+eventType]
	if !ok || strings.TrimSpace(signal) == "" {
		return "", false
	}
	return strings.TrimSpace(signal), true
}
