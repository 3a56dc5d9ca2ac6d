package translate

import (
	"bytes"
	"io"
	"log/slog"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"

	"coap-bridge/internal/config"
	"coap-bridge/internal/model"
)

// ResponseWriter is the subset of the CoAP response writer the translator
// needs. go-coap's mux.ResponseWriter satisfies it.
type ResponseWriter interface {
	SetResponse(code codes.Code, contentFormat message.MediaType, d io.ReadSeeker, opts ...message.Option) error
}

// ResponseTranslator maps backend HTTP outcomes onto the CoAP response.
type ResponseTranslator struct {
	failureMode string
	logger      *slog.Logger
}

// NewResponseTranslator creates a ResponseTranslator with the configured
// transport-failure policy.
func NewResponseTranslator(cfg *config.Config, logger *slog.Logger) *ResponseTranslator {
	return &ResponseTranslator{
		failureMode: cfg.Gateway.FailureMode,
		logger:      logger.With("component", "response_translator"),
	}
}

// Apply writes a successful backend exchange to the CoAP response: a fixed
// 2.03 Valid code and the HTTP body verbatim. The HTTP status code is not
// mapped onto a CoAP code — a backend 4xx/5xx still yields 2.03 with that
// error body as payload; the status lives in telemetry only.
func (t *ResponseTranslator) Apply(outcome *model.Outcome, w ResponseWriter) error {
	return w.SetResponse(codes.Valid, message.AppJSON, bytes.NewReader(outcome.Body))
}

// ApplyFailure handles a backend transport failure according to the
// configured policy. In "default" mode the response is left exactly as the
// protocol server initialized it; in "error" mode an explicit 5.02 Bad
// Gateway is set.
func (t *ResponseTranslator) ApplyFailure(w ResponseWriter) error {
	if t.failureMode == config.FailureModeError {
		return w.SetResponse(codes.BadGateway, message.TextPlain, bytes.NewReader(nil))
	}
	return nil
}
