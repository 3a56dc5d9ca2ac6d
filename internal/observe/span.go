// Package observe provides the request-scoped observability span for the
// bridge. A Span is created when a CoAP request arrives, carried explicitly
// through the translation pipeline, and ended exactly once; End emits a
// single structured summary line with everything recorded along the way.
package observe

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/plgd-dev/go-coap/v3/message/codes"
)

// Span accumulates the fields describing one translated request.
// It is owned by a single request goroutine and is not safe for
// concurrent use.
type Span struct {
	logger    *slog.Logger
	requestID string
	start     time.Time

	coapMethod string
	coapPath   string
	httpURL    string
	httpStatus int
	ended      bool
}

// Start opens a span for one inbound CoAP request.
func Start(logger *slog.Logger, code codes.Code, path string) *Span {
	return &Span{
		logger:     logger,
		requestID:  uuid.NewString(),
		start:      time.Now(),
		coapMethod: code.String(),
		coapPath:   path,
	}
}

// SetURL records the derived backend URL.
func (s *Span) SetURL(u string) { s.httpURL = u }

// SetStatus records the backend HTTP status code.
func (s *Span) SetStatus(code int) { s.httpStatus = code }

// URL returns the recorded backend URL, empty if none was derived.
func (s *Span) URL() string { return s.httpURL }

// Status returns the recorded backend HTTP status, 0 if none was received.
func (s *Span) Status() int { return s.httpStatus }

// RequestID returns the span's unique request identifier.
func (s *Span) RequestID() string { return s.requestID }

// Logger returns a logger carrying the span's request ID, for log lines
// emitted while the request is still in flight.
func (s *Span) Logger() *slog.Logger {
	return s.logger.With("request_id", s.requestID)
}

// End emits the summary line for the request. Pass nil on success.
// Calling End more than once is a no-op after the first call.
func (s *Span) End(err error) {
	if s.ended {
		return
	}
	s.ended = true

	attrs := []any{
		"request_id", s.requestID,
		"coap_method", s.coapMethod,
		"coap_path", s.coapPath,
		"duration_ms", time.Since(s.start).Milliseconds(),
	}
	if s.httpURL != "" {
		attrs = append(attrs, "http_url", s.httpURL)
	}
	if s.httpStatus != 0 {
		attrs = append(attrs, "http_status", s.httpStatus)
	}

	if err != nil {
		attrs = append(attrs, "err", err.Error())
		s.logger.Error("request failed", attrs...)
		return
	}
	s.logger.Info("request", attrs...)
}
