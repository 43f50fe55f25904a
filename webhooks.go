package webhooks

import (
	"github.com/goliatone/go-webhooks/core"
	"github.com/goliatone/go-webhooks/drivers"
)

type Config = core.Config

type ProviderConfig = core.ProviderConfig

type Option = core.Option

type Service = core.Service

type IngestResult = core.IngestResult
type IngestionRecord = core.IngestionRecord
type DeliveryStatus = core.DeliveryStatus
type RawRequest = core.RawRequest
type ExtractedEvent = core.ExtractedEvent
type Driver = core.Driver
type DriverFactory = core.DriverFactory
type DriverRegistry = core.DriverRegistry
type RecordStore = core.RecordStore
type SignalOutboxStore = core.SignalOutboxStore
type Signal = core.Signal
type SignalBus = core.SignalBus
type SignalHandler = core.SignalHandler
type SignalHandlerFunc = core.SignalHandlerFunc
type ErrorReporter = core.ErrorReporter
type MetricsRecorder = core.MetricsRecorder
type JobEnqueuer = core.JobEnqueuer
type JobDequeuer = core.JobDequeuer

const (
	DeliveryStatusPending    = core.DeliveryStatusPending
	DeliveryStatusProcessing = core.DeliveryStatusProcessing
	DeliveryStatusProcessed  = core.DeliveryStatusProcessed
	DeliveryStatusFailed     = core.DeliveryStatusFailed
)

const (
	SignalReceived  = core.SignalReceived
	SignalProcessed = core.SignalProcessed
	SignalFailed    = core.SignalFailed
)

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorMapper       = core.WithErrorMapper
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithDriverRegistry    = core.WithDriverRegistry
	WithBuiltinDrivers    = core.WithBuiltinDrivers
	WithRecordStore       = core.WithRecordStore
	WithSignalBus         = core.WithSignalBus
	WithJobEnqueuer       = core.WithJobEnqueuer
	WithErrorReporter     = core.WithErrorReporter
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// New builds a webhook service with the built-in provider drivers registered.
// Caller options run afterwards and may replace any default.
func New(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, withBuiltins(opts)...)
}

// Setup builds a service and fails fast on invalid runtime configuration.
func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, withBuiltins(opts)...)
}

func withBuiltins(opts []Option) []Option {
	combined := make([]Option, 0, len(opts)+1)
	combined = append(combined, core.WithBuiltinDrivers(drivers.Builtin()))
	combined = append(combined, opts...)
	return combined
}
