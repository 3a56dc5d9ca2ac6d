package translate

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"

	"coap-bridge/internal/config"
	"coap-bridge/internal/model"
)

// fakeWriter records SetResponse calls for assertions.
type fakeWriter struct {
	calls  int
	code   codes.Code
	format message.MediaType
	body   []byte
}

func (f *fakeWriter) SetResponse(code codes.Code, contentFormat message.MediaType, d io.ReadSeeker, _ ...message.Option) error {
	f.calls++
	f.code = code
	f.format = contentFormat
	if d != nil {
		f.body, _ = io.ReadAll(d)
	}
	return nil
}

func testResponder(mode string) *ResponseTranslator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{Gateway: config.GatewayConfig{FailureMode: mode}}
	return NewResponseTranslator(cfg, logger)
}

func TestApply_Success(t *testing.T) {
	rt := testResponder(config.FailureModeDefault)
	w := &fakeWriter{}

	body := []byte(`{"id":"42"}`)
	if err := rt.Apply(&model.Outcome{Status: 200, Body: body}, w); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if w.calls != 1 {
		t.Fatalf("SetResponse calls = %d, want 1", w.calls)
	}
	if w.code != codes.Valid {
		t.Errorf("code = %v, want %v", w.code, codes.Valid)
	}
	if w.format != message.AppJSON {
		t.Errorf("format = %v, want %v", w.format, message.AppJSON)
	}
	if !bytes.Equal(w.body, body) {
		t.Errorf("body = %q, want %q", w.body, body)
	}
}

func TestApply_HTTPErrorStillValid(t *testing.T) {
	// A backend 500 is a transport success: the CoAP code stays 2.03 and
	// the error body rides along as payload.
	rt := testResponder(config.FailureModeDefault)
	w := &fakeWriter{}

	body := []byte(`{"errcode":"M_UNKNOWN"}`)
	if err := rt.Apply(&model.Outcome{Status: 500, Body: body}, w); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if w.code != codes.Valid {
		t.Errorf("code = %v, want %v", w.code, codes.Valid)
	}
	if !bytes.Equal(w.body, body) {
		t.Errorf("body = %q, want %q", w.body, body)
	}
}

func TestApplyFailure_DefaultMode(t *testing.T) {
	rt := testResponder(config.FailureModeDefault)
	w := &fakeWriter{}

	if err := rt.ApplyFailure(w); err != nil {
		t.Fatalf("ApplyFailure() error = %v", err)
	}

	if w.calls != 0 {
		t.Errorf("SetResponse calls = %d, want 0 (response left untouched)", w.calls)
	}
}

func TestApplyFailure_ErrorMode(t *testing.T) {
	rt := testResponder(config.FailureModeError)
	w := &fakeWriter{}

	if err := rt.ApplyFailure(w); err != nil {
		t.Fatalf("ApplyFailure() error = %v", err)
	}

	if w.calls != 1 {
		t.Fatalf("SetResponse calls = %d, want 1", w.calls)
	}
	if w.code != codes.BadGateway {
		t.Errorf("code = %v, want %v", w.code, codes.BadGateway)
	}
	if len(w.body) != 0 {
		t.Errorf("body = %q, want empty", w.body)
	}
}
