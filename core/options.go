package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorMapper       ErrorMapper
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	registry          *DriverRegistry
	builtins          map[string]DriverFactory
	store             RecordStore
	bus               SignalBus
	enqueuer          JobEnqueuer
	reporter          ErrorReporter
	persistenceClient any
	repositoryFactory any
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithDriverRegistry(registry *DriverRegistry) Option {
	return func(b *serviceBuilder) {
		b.registry = registry
	}
}

// WithBuiltinDrivers seeds the registry constructed by NewService with the
// built-in driver factory table.
func WithBuiltinDrivers(builtins map[string]DriverFactory) Option {
	return func(b *serviceBuilder) {
		b.builtins = builtins
	}
}

func WithRecordStore(store RecordStore) Option {
	return func(b *serviceBuilder) {
		b.store = store
	}
}

func WithSignalBus(bus SignalBus) Option {
	return func(b *serviceBuilder) {
		b.bus = bus
	}
}

func WithJobEnqueuer(enqueuer JobEnqueuer) Option {
	return func(b *serviceBuilder) {
		b.enqueuer = enqueuer
	}
}

func WithErrorReporter(reporter ErrorReporter) Option {
	return func(b *serviceBuilder) {
		b.reporter = reporter
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	return serviceBuilder{
		runtimeConfig:   runtime,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		reporter:        NopErrorReporter{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return webhookErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	// store_payload is a policy toggle: a false in the config or runtime
	// layer must be able to override the enabled default.
	layer["store_payload"] = cfg.StorePayload
	if includeZero || cfg.RetentionDays > 0 {
		layer["retention_days"] = cfg.RetentionDays
	}
	if len(cfg.Providers) > 0 {
		providers := make(map[string]any, len(cfg.Providers))
		for name, provider := range cfg.Providers {
			providers[name] = providerToLayerMap(provider)
		}
		layer["providers"] = providers
	}
	if len(cfg.EventMap) > 0 {
		eventMap := make(map[string]any, len(cfg.EventMap))
		for key, signal := range cfg.EventMap {
			eventMap[key] = signal
		}
		layer["event_map"] = eventMap
	}
	return layer
}

func providerToLayerMap(cfg ProviderConfig) map[string]any {
	layer := map[string]any{"driver": cfg.Driver}
	if strings.TrimSpace(cfg.Secret) != "" {
		layer["secret"] = cfg.Secret
	}
	if strings.TrimSpace(cfg.SigningSecret) != "" {
		layer["signing_secret"] = cfg.SigningSecret
	}
	if strings.TrimSpace(cfg.AuthToken) != "" {
		layer["auth_token"] = cfg.AuthToken
	}
	if cfg.ToleranceSeconds > 0 {
		layer["tolerance"] = cfg.ToleranceSeconds
	}
	for key, value := range map[string]string{
		"algorithm":    cfg.Algorithm,
		"header":       cfg.Header,
		"prefix":       cfg.Prefix,
		"event_key":    cfg.EventKey,
		"id_key":       cfg.IDKey,
		"event_header": cfg.EventHeader,
		"id_header":    cfg.IDHeader,
	} {
		if strings.TrimSpace(value) != "" {
			layer[key] = value
		}
	}
	if len(cfg.Extra) > 0 {
		layer["extra"] = cfg.Extra
	}
	return layer
}
