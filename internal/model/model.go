// Package model defines shared types for the bridge.
package model

import (
	"net/http"
	"strings"

	"github.com/plgd-dev/go-coap/v3/message/codes"
)

// CodePATCH is the CoAP PATCH request code from RFC 8132. go-coap only
// exports the base RFC 7252 request codes.
const CodePATCH = codes.Code(6)

// QueryParam is one URI-Query option split on the first "=".
// HasValue distinguishes "?flag=" from "?flag".
type QueryParam struct {
	Key      string
	Value    string
	HasValue bool
}

// InboundRequest is a parsed CoAP request as handed to the gateway by the
// server adapter. The gateway reads it and never retains it past the request.
type InboundRequest struct {
	Code    codes.Code
	Path    string
	Query   []QueryParam
	Payload []byte
}

// OutboundRequest describes the HTTP request derived from an InboundRequest.
// Body aliases the inbound payload; it is forwarded byte-for-byte.
type OutboundRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Outcome is a completed backend exchange: the HTTP transport succeeded and
// the body was fully read. Transport failures are errors, never Outcomes,
// even though a 4xx/5xx status here is still an Outcome.
type Outcome struct {
	Status int
	Body   []byte
}

// ParseQuery splits a raw URI-Query option into a QueryParam.
func ParseQuery(raw string) QueryParam {
	if i := strings.IndexByte(raw, '='); i >= 0 {
		return QueryParam{Key: raw[:i], Value: raw[i+1:], HasValue: true}
	}
	return QueryParam{Key: raw}
}
