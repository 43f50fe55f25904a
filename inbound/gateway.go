package inbound

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-webhooks/core"
)

const (
	responseStatusReceived = "received"

	messageInvalidSignature = "Invalid signature"
	messageUnknownProvider  = "Unknown provider"
	messageInternalError    = "Internal error"
)

// Response is the transport-agnostic outcome of an inbound delivery: a status
// code plus the JSON-serializable body to write.
type Response struct {
	StatusCode int
	Body       map[string]any
}

// Gateway is the HTTP-shaped boundary in front of the ingestion service. It
// maps service results and errors to response envelopes, reporting auth and
// internal failures before answering.
type Gateway struct {
	Service  *core.Service
	Reporter core.ErrorReporter
	Logger   core.Logger
	// MaxBodyBytes caps how much of the request body the gateway reads when
	// serving net/http directly. Zero applies the 1 MiB default.
	MaxBodyBytes int64
}

func NewGateway(service *core.Service) *Gateway {
	reporter := core.ErrorReporter(core.NopErrorReporter{})
	logger := glog.Ensure(nil)
	if service != nil {
		reporter = service.Reporter()
		logger = service.Logger()
	}
	return &Gateway{
		Service:  service,
		Reporter: reporter,
		Logger:   logger,
	}
}

// Handle runs one delivery through the ingestion service and shapes the
// response. The provider name comes from the request path.
func (g *Gateway) Handle(ctx context.Context, provider string, req core.RawRequest) Response {
	if g == nil || g.Service == nil {
		return g.internalResponse(ctx, inboundInternal("inbound: gateway requires a service", nil), provider)
	}
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return g.notFoundResponse()
	}

	result, err := g.Service.Ingest(ctx, provider, req)
	if err != nil {
		return g.errorResponse(ctx, err, provider)
	}

	if result.Challenge != "" {
		return Response{
			StatusCode: http.StatusOK,
			Body:       map[string]any{"challenge": result.Challenge},
		}
	}
	return Response{
		StatusCode: http.StatusOK,
		Body: map[string]any{
			"status": responseStatusReceived,
			"id":     result.Record.ExternalUUID,
		},
	}
}

func (g *Gateway) errorResponse(ctx context.Context, err error, provider string) Response {
	switch {
	case core.IsSignatureError(err):
		g.report(ctx, err, provider)
		return Response{
			StatusCode: http.StatusUnauthorized,
			Body:       map[string]any{"error": messageInvalidSignature},
		}
	case core.IsUnknownProviderError(err):
		return g.notFoundResponse()
	default:
		return g.internalResponse(ctx, err, provider)
	}
}

func (g *Gateway) notFoundResponse() Response {
	return Response{
		StatusCode: http.StatusNotFound,
		Body:       map[string]any{"error": messageUnknownProvider},
	}
}

// internalResponse hides failure details from the caller. The cause goes to
// the reporter and the log, never the wire.
func (g *Gateway) internalResponse(ctx context.Context, err error, provider string) Response {
	g.report(ctx, err, provider)
	g.logger().WithContext(ctx).Error("webhook ingestion failed",
		"provider", provider,
		"error", err.Error(),
	)
	return Response{
		StatusCode: http.StatusInternalServerError,
		Body:       map[string]any{"error": messageInternalError},
	}
}

func (g *Gateway) report(ctx context.Context, err error, provider string) {
	reporter := g.Reporter
	if reporter == nil {
		reporter = core.NopErrorReporter{}
	}
	metadata := map[string]any{"provider": provider}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && len(richErr.Metadata) > 0 {
		for key, value := range richErr.Metadata {
			metadata[key] = value
		}
	}
	reporter.Report(ctx, err, metadata)
}

// ServeHTTP mounts the gateway at "POST {prefix}/{provider}". The last path
// segment names the provider.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "Method not allowed"})
		return
	}
	provider := providerFromPath(r.URL.Path)
	req, err := g.BuildRawRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid request"})
		return
	}
	response := g.Handle(r.Context(), provider, req)
	writeJSON(w, response.StatusCode, response.Body)
}

// BuildRawRequest captures the raw body and the externally visible URL so
// URL-signing schemes verify against what the provider actually signed.
// Forwarded headers win over the local request line.
func (g *Gateway) BuildRawRequest(r *http.Request) (core.RawRequest, error) {
	limit := g.MaxBodyBytes
	if limit <= 0 {
		limit = 1 << 20
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, limit))
	if err != nil {
		return core.RawRequest{}, err
	}

	headers := make(map[string]string, len(r.Header))
	for name, values := range r.Header {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}

	return core.RawRequest{
		Method:  r.Method,
		URL:     resolveExternalURL(r),
		Headers: headers,
		Body:    body,
	}, nil
}

func resolveExternalURL(r *http.Request) string {
	scheme := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto"))
	if scheme == "" {
		scheme = "https"
		if r.TLS == nil {
			scheme = "http"
		}
	}
	host := strings.TrimSpace(r.Header.Get("X-Forwarded-Host"))
	if host == "" {
		host = r.Host
	}
	uri := r.URL.RequestURI()
	return scheme + "://" + host + uri
}

func providerFromPath(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return ""
	}
	segments := strings.Split(trimmed, "/")
	return segments[len(segments)-1]
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (g *Gateway) logger() core.Logger {
	if g != nil && g.Logger != nil {
		return g.Logger
	}
	return glog.Ensure(nil)
}
