package core

import (
	"context"
	"net/url"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// RawRequest carries everything a driver may inspect: the raw body bytes, the
// request headers, and the full URL for schemes that sign over it.
type RawRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
	// Form holds decoded POST form parameters when the boundary already
	// parsed them. Drivers fall back to decoding Body when nil.
	Form     url.Values
	Metadata map[string]any
}

// Header returns a request header by case-insensitive name.
func (r RawRequest) Header(key string) string {
	if len(r.Headers) == 0 {
		return ""
	}
	for existing, value := range r.Headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// FormValues returns the decoded POST parameters, parsing the body when the
// boundary did not supply them.
func (r RawRequest) FormValues() url.Values {
	if r.Form != nil {
		return r.Form
	}
	values, err := url.ParseQuery(string(r.Body))
	if err != nil {
		return url.Values{}
	}
	return values
}

// ExtractedEvent is what a driver derives from a validated request.
type ExtractedEvent struct {
	EventType  string
	ExternalID string
	Payload    Document
	// Headers is the allow-listed subset retained on the record; absent
	// headers are omitted, never stored empty.
	Headers map[string]string
	// Challenge short-circuits the pipeline: when set, the boundary echoes
	// it back and no record is created.
	Challenge string
}

// Driver bundles a provider's signature verification and event extraction.
// Instances are configuration-bound, immutable, and shared across requests.
type Driver interface {
	Name() string
	Verify(ctx context.Context, req RawRequest) error
	Extract(ctx context.Context, req RawRequest) (ExtractedEvent, error)
	StorableHeaders() []string
}

// DriverFactory builds a driver from its provider configuration. Extension
// factories receive arbitrary values through ProviderConfig.Extra.
type DriverFactory func(cfg ProviderConfig) (Driver, error)

type CreateRecordInput struct {
	Provider   string
	EventType  string
	ExternalID string
	Headers    map[string]string
	Payload    Document
}

type RecordFilter struct {
	Provider  string
	Status    DeliveryStatus
	OlderThan time.Time
	Limit     int
}

type PruneFilter struct {
	OlderThan time.Time
	Provider  string
	Status    DeliveryStatus
	DryRun    bool
}

// RecordStore persists ingestion records. Lifecycle methods load the record,
// apply the domain transition, and write the result in one call so status is
// never in-memory only.
type RecordStore interface {
	Create(ctx context.Context, in CreateRecordInput) (IngestionRecord, error)
	Get(ctx context.Context, id string) (IngestionRecord, error)
	GetByExternalUUID(ctx context.Context, externalUUID string) (IngestionRecord, error)
	List(ctx context.Context, filter RecordFilter) ([]IngestionRecord, error)
	BeginProcessing(ctx context.Context, id string) (IngestionRecord, error)
	CompleteProcessing(ctx context.Context, id string) (IngestionRecord, error)
	FailProcessing(ctx context.Context, id string, message string) (IngestionRecord, error)
	ResetForRetry(ctx context.Context, id string) (IngestionRecord, error)
	Prune(ctx context.Context, filter PruneFilter) (int, error)
}

const (
	SignalReceived  = "webhook.received"
	SignalProcessed = "webhook.processed"
	SignalFailed    = "webhook.failed"
)

// Signal is the data-carrying notification emitted around record processing.
type Signal struct {
	ID         string
	Name       string
	Record     IngestionRecord
	Error      string
	Metadata   map[string]any
	OccurredAt time.Time
}

type SignalHandler interface {
	Handle(ctx context.Context, signal Signal) error
}

type SignalHandlerFunc func(ctx context.Context, signal Signal) error

func (f SignalHandlerFunc) Handle(ctx context.Context, signal Signal) error {
	return f(ctx, signal)
}

// SignalBus dispatches signals to subscribed handlers. Publish returns the
// first handler error so callers observe downstream failures synchronously.
type SignalBus interface {
	Publish(ctx context.Context, signal Signal) error
	Subscribe(name string, handler SignalHandler)
}

// SignalOutboxStore is the durable fan-out buffer consumed by the outbox
// dispatcher.
type SignalOutboxStore interface {
	Enqueue(ctx context.Context, signal Signal) error
	ClaimBatch(ctx context.Context, limit int) ([]Signal, error)
	Ack(ctx context.Context, signalID string) error
	Retry(ctx context.Context, signalID string, cause error, nextAttemptAt time.Time) error
}

type DispatchStats struct {
	Claimed   int
	Delivered int
	Retried   int
	Failed    int
}

type SignalDispatcher interface {
	DispatchPending(ctx context.Context, batchSize int) (DispatchStats, error)
}

// ErrorReporter is the external error-reporting collaborator notified before
// the boundary responds with 401 or 500.
type ErrorReporter interface {
	Report(ctx context.Context, err error, metadata map[string]any)
}

type NopErrorReporter struct{}

func (NopErrorReporter) Report(context.Context, error, map[string]any) {}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

// StoreProvider exposes the persistence-backed stores built by a repository
// factory.
type StoreProvider interface {
	RecordStore() RecordStore
	SignalOutboxStore() SignalOutboxStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}
