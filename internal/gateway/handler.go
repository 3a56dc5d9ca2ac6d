// Package gateway implements the per-request CoAP→HTTP orchestration.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"

	"coap-bridge/internal/client"
	"coap-bridge/internal/metrics"
	"coap-bridge/internal/model"
	"coap-bridge/internal/observe"
	"coap-bridge/internal/translate"
)

// Handler sequences translation, forwarding, and response mapping for one
// inbound request at a time. All dependencies are injected and shared;
// the handler itself holds no per-request state and is safe for concurrent
// invocations.
type Handler struct {
	translator *translate.RequestTranslator
	responder  *translate.ResponseTranslator
	client     *client.BackendClient
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewHandler creates a Handler.
func NewHandler(
	rt *translate.RequestTranslator,
	rs *translate.ResponseTranslator,
	bc *client.BackendClient,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Handler {
	return &Handler{
		translator: rt,
		responder:  rs,
		client:     bc,
		logger:     logger.With("component", "gateway"),
		metrics:    m,
	}
}

// Handle bridges one inbound request. It always finishes with a response
// decision: a populated reply on success, a protocol error code for
// translation failures, and the configured failure policy for transport
// failures. Failures never propagate past this method and never affect
// other in-flight requests.
func (h *Handler) Handle(ctx context.Context, in *model.InboundRequest, w translate.ResponseWriter) {
	if h.metrics != nil {
		h.metrics.RequestsInFlight.Inc()
		defer h.metrics.RequestsInFlight.Dec()
	}

	start := time.Now()
	span := observe.Start(h.logger, in.Code, in.Path)
	span.Logger().Debug("received CoAP request")

	outcome := metrics.OutcomeSuccess
	defer func() {
		if h.metrics != nil {
			method := metrics.NormalizeMethod(in.Code)
			h.metrics.RequestsTotal.WithLabelValues(method, outcome).Inc()
			h.metrics.RequestDuration.WithLabelValues(method, outcome).Observe(time.Since(start).Seconds())
		}
	}()

	out, err := h.translator.Translate(in, span)
	if err != nil {
		outcome = h.rejectRequest(w, span, err)
		return
	}

	res, err := h.client.Do(ctx, out, span)
	if err != nil {
		outcome = metrics.OutcomeTransportFailure
		span.End(err)
		if err := h.responder.ApplyFailure(w); err != nil {
			h.logger.Error("write CoAP failure response", "err", err)
		}
		return
	}

	if err := h.responder.Apply(res, w); err != nil {
		span.Logger().Error("write CoAP response", "err", err)
	}
	span.End(nil)
}

// rejectRequest answers a translation failure with the matching CoAP error
// code and returns the metrics outcome label.
func (h *Handler) rejectRequest(w translate.ResponseWriter, span *observe.Span, err error) string {
	span.End(err)

	code := codes.InternalServerError
	outcome := metrics.OutcomeError

	var um *translate.UnsupportedMethodError
	var mp *translate.MalformedPathError
	switch {
	case errors.As(err, &um):
		code = codes.MethodNotAllowed
		outcome = metrics.OutcomeUnsupportedMethod
	case errors.As(err, &mp):
		code = codes.BadRequest
		outcome = metrics.OutcomeMalformedPath
	}

	if err := w.SetResponse(code, message.TextPlain, bytes.NewReader(nil)); err != nil {
		h.logger.Error("write CoAP error response", "err", err)
	}
	return outcome
}
