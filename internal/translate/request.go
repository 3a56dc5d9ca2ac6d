// Package translate implements the request and response translation core of
// the bridge: CoAP request → HTTP request descriptor, and backend HTTP
// outcome → CoAP reply.
package translate

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/plgd-dev/go-coap/v3/message/codes"

	"coap-bridge/internal/config"
	"coap-bridge/internal/model"
	"coap-bridge/internal/observe"
)

// accessTokenParam is the query parameter relocated into the Authorization header.
const accessTokenParam = "access_token"

// UnsupportedMethodError reports a CoAP method code the bridge does not map
// to an HTTP verb.
type UnsupportedMethodError struct {
	Code codes.Code
}

func (e *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("unsupported CoAP method %v", e.Code)
}

// MalformedPathError reports an inbound path that cannot be combined with the
// backend origin into a valid URL.
type MalformedPathError struct {
	Path string
	Err  error
}

func (e *MalformedPathError) Error() string {
	return fmt.Sprintf("malformed request path %q: %v", e.Path, e.Err)
}

func (e *MalformedPathError) Unwrap() error { return e.Err }

// RequestTranslator builds outbound HTTP request descriptors from inbound
// CoAP requests against a fixed backend origin.
type RequestTranslator struct {
	origin string
	logger *slog.Logger
}

// NewRequestTranslator creates a RequestTranslator for the configured backend origin.
func NewRequestTranslator(cfg *config.Config, logger *slog.Logger) (*RequestTranslator, error) {
	if _, err := url.Parse(cfg.Backend.Origin); err != nil {
		return nil, fmt.Errorf("parse backend origin: %w", err)
	}

	return &RequestTranslator{
		origin: strings.TrimSuffix(cfg.Backend.Origin, "/"),
		logger: logger.With("component", "request_translator"),
	}, nil
}

// Translate derives the outbound HTTP request from an inbound CoAP request.
//
// The derived URL is recorded on the span before the method is checked, so
// unsupported-method failures still carry the URL in telemetry. The payload
// is forwarded as an opaque byte sequence; Content-Type is always
// application/json regardless of the actual encoding (payload transcoding is
// out of scope).
func (t *RequestTranslator) Translate(in *model.InboundRequest, span *observe.Span) (*model.OutboundRequest, error) {
	u, err := url.Parse(t.origin + "/" + strings.TrimPrefix(in.Path, "/"))
	if err != nil {
		return nil, &MalformedPathError{Path: in.Path, Err: err}
	}

	token, kept := extractToken(in.Query)
	u.RawQuery = encodeQuery(kept)

	span.SetURL(u.String())

	verb, ok := httpMethod(in.Code)
	if !ok {
		return nil, &UnsupportedMethodError{Code: in.Code}
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	t.logger.Debug("translated request",
		"coap_method", in.Code.String(),
		"http_method", verb,
	)

	return &model.OutboundRequest{
		Method: verb,
		URL:    u.String(),
		Header: header,
		Body:   in.Payload,
	}, nil
}

// httpMethod maps a CoAP request code onto its HTTP verb.
func httpMethod(c codes.Code) (string, bool) {
	switch c {
	case codes.GET:
		return http.MethodGet, true
	case codes.POST:
		return http.MethodPost, true
	case codes.PUT:
		return http.MethodPut, true
	case codes.DELETE:
		return http.MethodDelete, true
	case model.CodePATCH:
		return http.MethodPatch, true
	}
	return "", false
}

// extractToken removes every access_token pair from the query in a single
// pass and returns the first occurrence's value as the bearer credential.
// All other pairs keep their original relative order, duplicates included.
func extractToken(query []model.QueryParam) (string, []model.QueryParam) {
	var token string
	found := false
	kept := make([]model.QueryParam, 0, len(query))

	for _, p := range query {
		if p.Key == accessTokenParam {
			if !found {
				token = p.Value
				found = true
			}
			continue
		}
		kept = append(kept, p)
	}

	return token, kept
}

// encodeQuery re-serializes query pairs in their original order.
// url.Values.Encode is unusable here: it sorts keys.
func encodeQuery(params []model.QueryParam) string {
	var b strings.Builder
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Key))
		if p.HasValue {
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(p.Value))
		}
	}
	return b.String()
}
