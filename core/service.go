package core

import (
	"context"
	"sort"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

const JobIDDeliver = "webhooks.delivery"

// Service is the ingestion core: it resolves the driver for a provider,
// verifies the request signature, extracts event metadata, and persists the
// pending record. Processing happens later in the delivery pipeline.
type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	registry        *DriverRegistry
	store           RecordStore
	bus             SignalBus
	enqueuer        JobEnqueuer
	reporter        ErrorReporter
	now             func() time.Time
}

// IngestResult is the outcome of a successful ingestion. Challenge is set
// for verification handshakes that bypass record creation.
type IngestResult struct {
	Record    *IngestionRecord
	Challenge string
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("webhooks", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("webhooks"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.reporter == nil {
		builder.reporter = NopErrorReporter{}
	}
	if builder.bus == nil {
		builder.bus = NewInMemorySignalBus()
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.store == nil && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			provider, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			if provider != nil {
				builder.store = provider.RecordStore()
			}
		} else if provider, ok := builder.repositoryFactory.(StoreProvider); ok {
			builder.store = provider.RecordStore()
		}
	}

	registry := builder.registry
	if registry == nil {
		registry = NewDriverRegistry(finalConfig, builder.builtins)
	}

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		registry:        registry,
		store:           builder.store,
		bus:             builder.bus,
		enqueuer:        builder.enqueuer,
		reporter:        builder.reporter,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// Setup builds a service and fails fast on invalid runtime configuration.
func Setup(cfg Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewService(cfg, opts...)
}

// Ingest runs the synchronous ingestion path: resolve, verify, extract,
// persist, enqueue. No record exists for a request that fails verification.
func (s *Service) Ingest(ctx context.Context, provider string, req RawRequest) (IngestResult, error) {
	if s == nil || s.store == nil {
		return IngestResult{}, goerrors.New("core: ingestion service requires a record store", goerrors.CategoryInternal).
			WithTextCode(WebhookErrorInternal)
	}
	startedAt := s.clock()
	provider = strings.TrimSpace(provider)

	driver, err := s.registry.Resolve(provider)
	if err != nil {
		// A configured provider whose driver cannot be built has unusable
		// credentials; that reads as an auth failure, not a server fault.
		if !IsUnknownProviderError(err) {
			err = s.mapSignatureFailure(err, provider)
		}
		s.observeIngest(ctx, startedAt, provider, err)
		return IngestResult{}, err
	}

	if err := driver.Verify(ctx, req); err != nil {
		mapped := s.mapSignatureFailure(err, provider)
		s.observeIngest(ctx, startedAt, provider, mapped)
		return IngestResult{}, mapped
	}

	event, err := driver.Extract(ctx, req)
	if err != nil {
		mapped := mapBuildError(s.errorMapper, err)
		s.observeIngest(ctx, startedAt, provider, mapped)
		return IngestResult{}, mapped
	}

	if event.Challenge != "" {
		s.observeIngest(ctx, startedAt, provider, nil)
		return IngestResult{Challenge: event.Challenge}, nil
	}

	payload := event.Payload
	if !s.config.StorePayload {
		payload = nil
	}
	record, err := s.store.Create(ctx, CreateRecordInput{
		Provider:   provider,
		EventType:  event.EventType,
		ExternalID: event.ExternalID,
		Headers:    event.Headers,
		Payload:    payload,
	})
	if err != nil {
		mapped := mapBuildError(s.errorMapper, err)
		s.observeIngest(ctx, startedAt, provider, mapped)
		return IngestResult{}, mapped
	}

	if s.enqueuer != nil {
		if err := s.enqueuer.Enqueue(ctx, DeliveryMessage(record)); err != nil {
			// The record is durable; delivery can be replayed. Surface the
			// enqueue failure without rolling back ingestion.
			s.logError(ctx, "delivery enqueue failed", map[string]any{
				"provider":  provider,
				"record_id": record.ID,
				"error":     err.Error(),
			})
		}
	}

	s.observeIngest(ctx, startedAt, provider, nil)
	return IngestResult{Record: &record}, nil
}

// DeliveryMessage builds the queue message that triggers the delivery
// pipeline for a record.
func DeliveryMessage(record IngestionRecord) *JobExecutionMessage {
	return &JobExecutionMessage{
		JobID: JobIDDeliver,
		Parameters: map[string]any{
			"record_id":     record.ID,
			"external_uuid": record.ExternalUUID,
			"provider":      record.Provider,
		},
		IdempotencyKey: record.ExternalUUID,
	}
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Registry() *DriverRegistry {
	if s == nil {
		return nil
	}
	return s.registry
}

func (s *Service) Store() RecordStore {
	if s == nil {
		return nil
	}
	return s.store
}

func (s *Service) Bus() SignalBus {
	if s == nil {
		return nil
	}
	return s.bus
}

func (s *Service) Enqueuer() JobEnqueuer {
	if s == nil {
		return nil
	}
	return s.enqueuer
}

func (s *Service) Reporter() ErrorReporter {
	if s == nil || s.reporter == nil {
		return NopErrorReporter{}
	}
	return s.reporter
}

func (s *Service) Logger() Logger {
	if s == nil {
		return glog.Ensure(nil)
	}
	return s.logger
}

func (s *Service) mapSignatureFailure(err error, provider string) error {
	if IsSignatureError(err) {
		return err
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Category == goerrors.CategoryAuth {
		return err
	}
	return NewSignatureError(err.Error(), map[string]any{"provider": provider})
}

func (s *Service) observeIngest(ctx context.Context, startedAt time.Time, provider string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	tags := map[string]string{"provider": provider, "status": status}
	s.recordCounter(ctx, "webhooks.ingest.total", 1, tags)
	s.recordHistogram(ctx, "webhooks.ingest.duration_ms", float64(time.Since(startedAt).Milliseconds()), tags)

	fields := map[string]any{
		"provider":    provider,
		"status":      status,
		"duration_ms": time.Since(startedAt).Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
		s.logError(ctx, "webhook ingest failed", fields)
		return
	}
	s.logInfo(ctx, "webhook ingest accepted", fields)
}

func (s *Service) clock() time.Time {
	if s != nil && s.now != nil {
		return s.now()
	}
	return time.Now().UTC()
}

func (s *Service) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if s == nil || s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (s *Service) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if s == nil || s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (s *Service) logInfo(ctx context.Context, message string, fields map[string]any) {
	s.logWithLevel(ctx, "info", message, fields)
}

func (s *Service) logError(ctx context.Context, message string, fields map[string]any) {
	s.logWithLevel(ctx, "error", message, fields)
}

func (s *Service) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	if s == nil || s.logger == nil {
		return
	}
	logger := s.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		logger.Error(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	if mapped := mapper(err); mapped != nil {
		return mapped
	}
	return err
}

// NewExternalUUID is the single place external record identifiers come from.
func NewExternalUUID() string {
	return uuid.NewString()
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}
