// Package localinvoke serves a composed handler over HTTP, standing in for
// the serverless runtime during local development. Each POST body is decoded
// as one event and the result is written back as JSON.
package localinvoke

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	lambdamiddlewareutils "github.com/niko-dunixi/lambdamiddleware-utils"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// RequestIDHeader carries the invocation id in both directions.
const RequestIDHeader = "Lambda-Runtime-Aws-Request-Id"

// ErrorResponse is the body written when the handler returns an error.
type ErrorResponse struct {
	ErrorMessage string `json:"errorMessage"`
	ErrorType    string `json:"errorType"`
}

type options struct {
	config         Config
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
}

type Option func(*options)

func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// NewHandler adapts h to an http.Handler instrumented with otelhttp.
func NewHandler[E, R any](h lambdamiddlewareutils.Handler[E, R], opts ...Option) http.Handler {
	o := options{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	var otelOpts []otelhttp.Option
	if o.tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(o.tracerProvider))
	}
	return otelhttp.NewHandler(&invoker[E, R]{handler: h, config: o.config, logger: o.logger}, o.config.FunctionName, otelOpts...)
}

type invoker[E, R any] struct {
	handler lambdamiddlewareutils.Handler[E, R]
	config  Config
	logger  *slog.Logger
}

func (inv *invoker[E, R]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{
			ErrorMessage: fmt.Sprintf("method %s not allowed", r.Method),
			ErrorType:    "MethodNotAllowed",
		})
		return
	}
	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, requestID)

	event, status, err := inv.decodeEvent(w, r)
	if err != nil {
		inv.logger.Warn("invalid event", "request_id", requestID, "error", err)
		writeJSON(w, status, ErrorResponse{
			ErrorMessage: err.Error(),
			ErrorType:    "InvalidRequestContent",
		})
		return
	}

	ctx := r.Context()
	if inv.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.config.Timeout)
		defer cancel()
	}
	lc := lambdamiddlewareutils.NewContext(map[string]any{
		lambdamiddlewareutils.RequestIDKey:       requestID,
		lambdamiddlewareutils.FunctionNameKey:    inv.config.FunctionName,
		lambdamiddlewareutils.FunctionVersionKey: inv.config.FunctionVersion,
		lambdamiddlewareutils.MemoryLimitKey:     inv.config.MemoryLimitMB,
	})

	start := time.Now()
	result, err := inv.handler(ctx, event, lc)
	duration := time.Since(start)
	if err != nil {
		inv.logger.Error("invocation failed",
			"request_id", requestID,
			"function", inv.config.FunctionName,
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			ErrorMessage: err.Error(),
			ErrorType:    fmt.Sprintf("%T", err),
		})
		return
	}
	body, err := json.Marshal(result)
	if err != nil {
		inv.logger.Error("invocation result not serializable",
			"request_id", requestID,
			"function", inv.config.FunctionName,
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			ErrorMessage: err.Error(),
			ErrorType:    "ResultMarshalError",
		})
		return
	}
	inv.logger.Info("invocation",
		"request_id", requestID,
		"function", inv.config.FunctionName,
		"duration_ms", duration.Milliseconds(),
	)
	writeBody(w, http.StatusOK, body)
}

// decodeEvent reads exactly one JSON value from the request body. An empty
// body yields the zero event.
func (inv *invoker[E, R]) decodeEvent(w http.ResponseWriter, r *http.Request) (E, int, error) {
	var event E
	reader := io.Reader(r.Body)
	if inv.config.MaxEventBytes > 0 {
		reader = http.MaxBytesReader(w, r.Body, inv.config.MaxEventBytes)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return event, http.StatusRequestEntityTooLarge, fmt.Errorf("event exceeds %d bytes", tooLarge.Limit)
		}
		return event, http.StatusBadRequest, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return event, http.StatusOK, nil
	}
	if err := json.Unmarshal(data, &event); err != nil {
		return event, http.StatusBadRequest, err
	}
	return event, http.StatusOK, nil
}

// writeJSON is used for bodies that always encode.
func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		data = []byte(`{"errorMessage":"response not serializable","errorType":"ResultMarshalError"}`)
	}
	writeBody(w, status, data)
}

func writeBody(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
