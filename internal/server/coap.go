// Package server runs the CoAP UDP endpoint and adapts parsed datagrams for
// the gateway. Everything transport-level (framing, retransmission,
// deduplication, block-wise transfer) belongs to go-coap; this package only
// decodes messages into the gateway's request model and applies inbound
// limits before dispatch.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	coapnet "github.com/plgd-dev/go-coap/v3/net"
	"github.com/plgd-dev/go-coap/v3/mux"
	"github.com/plgd-dev/go-coap/v3/options"
	"github.com/plgd-dev/go-coap/v3/udp"
	udpserver "github.com/plgd-dev/go-coap/v3/udp/server"
	"golang.org/x/time/rate"

	"coap-bridge/internal/config"
	"coap-bridge/internal/gateway"
	"coap-bridge/internal/model"
	"coap-bridge/internal/translate"
)

// coapMessage is the subset of a parsed CoAP message the adapter reads.
// mux.Message satisfies it.
type coapMessage interface {
	Code() codes.Code
	Options() message.Options
	ReadBody() ([]byte, error)
}

// Server is the CoAP UDP front end. go-coap dispatches each inbound request
// on its own goroutine, so gateway invocations run concurrently without any
// serialization here.
type Server struct {
	cfg     *config.Config
	handler *gateway.Handler
	logger  *slog.Logger
	limiter *rate.Limiter

	conn *coapnet.UDPConn
	srv  *udpserver.Server
}

// New creates a Server. The rate limiter is only constructed when enabled in
// config; the translation core itself performs no admission control.
func New(cfg *config.Config, h *gateway.Handler, logger *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		handler: h,
		logger:  logger.With("component", "coap_server"),
	}
	if cfg.Server.RateLimit.Enabled {
		rps := cfg.Server.RateLimit.RequestsPerSecond
		s.limiter = rate.NewLimiter(rate.Limit(rps), int(rps)+1)
	}
	return s
}

// Start binds the UDP listener and begins serving in the background.
func (s *Server) Start() error {
	addr := s.cfg.Server.Addr()
	conn, err := coapnet.NewListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", addr, err)
	}
	s.conn = conn

	r := mux.NewRouter()
	r.DefaultHandle(mux.HandlerFunc(s.serve))
	s.srv = udp.NewServer(options.WithMux(r))

	s.logger.Info("server up",
		"listen_address", addr,
		"backend_origin", s.cfg.Backend.Origin,
	)

	go func() {
		if err := s.srv.Serve(conn); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Error("coap server error", "err", err)
		}
	}()

	return nil
}

// Stop shuts the server down and closes the listener.
func (s *Server) Stop() error {
	if s.srv != nil {
		s.srv.Stop()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Server) serve(w mux.ResponseWriter, m *mux.Message) {
	s.dispatch(m.Context(), m, w)
}

// dispatch applies inbound limits, decodes the message, and hands it to the
// gateway. Every path writes a response decision.
func (s *Server) dispatch(ctx context.Context, m coapMessage, w translate.ResponseWriter) {
	if s.limiter != nil && !s.limiter.Allow() {
		s.logger.Warn("request rejected by rate limiter")
		s.reply(w, codes.ServiceUnavailable)
		return
	}

	in, err := s.decode(m)
	if err != nil {
		s.logger.Error("decode CoAP request", "err", err)
		s.reply(w, codes.BadRequest)
		return
	}
	if int64(len(in.Payload)) > s.cfg.Server.MaxPayloadBytes {
		s.logger.Warn("payload over limit",
			"size", len(in.Payload),
			"limit", s.cfg.Server.MaxPayloadBytes,
		)
		s.reply(w, codes.RequestEntityTooLarge)
		return
	}

	s.handler.Handle(ctx, in, w)
}

// decode converts a parsed CoAP message into the gateway's request model.
// Missing URI-Path/URI-Query options are valid (a request to the origin root
// carries neither), so option lookup failures fall back to empty values.
func (s *Server) decode(m coapMessage) (*model.InboundRequest, error) {
	path, err := m.Options().Path()
	if err != nil {
		path = ""
	}
	queries, err := m.Options().Queries()
	if err != nil {
		queries = nil
	}
	payload, err := m.ReadBody()
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}

	in := &model.InboundRequest{
		Code:    m.Code(),
		Path:    path,
		Payload: payload,
	}
	for _, q := range queries {
		in.Query = append(in.Query, model.ParseQuery(q))
	}
	return in, nil
}

func (s *Server) reply(w translate.ResponseWriter, code codes.Code) {
	if err := w.SetResponse(code, message.TextPlain, bytes.NewReader(nil)); err != nil {
		s.logger.Error("write CoAP response", "code", code.String(), "err", err)
	}
}
