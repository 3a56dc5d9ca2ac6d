package observe

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/plgd-dev/go-coap/v3/message/codes"
)

func TestSpan_EndSuccess(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	span := Start(logger, codes.GET, "rooms/1/state")
	span.SetURL("http://localhost:8015/rooms/1/state?limit=5")
	span.SetStatus(200)
	span.End(nil)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}

	if line["msg"] != "request" {
		t.Errorf("msg = %v, want %q", line["msg"], "request")
	}
	if line["coap_method"] != "GET" {
		t.Errorf("coap_method = %v, want %q", line["coap_method"], "GET")
	}
	if line["coap_path"] != "rooms/1/state" {
		t.Errorf("coap_path = %v, want %q", line["coap_path"], "rooms/1/state")
	}
	if line["http_url"] != "http://localhost:8015/rooms/1/state?limit=5" {
		t.Errorf("http_url = %v", line["http_url"])
	}
	if line["http_status"] != float64(200) {
		t.Errorf("http_status = %v, want 200", line["http_status"])
	}
	if line["request_id"] == "" || line["request_id"] == nil {
		t.Error("request_id missing from log line")
	}
}

func TestSpan_EndFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	span := Start(logger, codes.POST, "send")
	span.End(errors.New("connection refused"))

	out := buf.String()
	if !strings.Contains(out, "request failed") {
		t.Errorf("expected failure line, got %q", out)
	}
	if !strings.Contains(out, "connection refused") {
		t.Errorf("expected error in line, got %q", out)
	}
	if strings.Contains(out, "http_status") {
		t.Errorf("http_status should be omitted when never recorded, got %q", out)
	}
}

func TestSpan_EndOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	span := Start(logger, codes.GET, "x")
	span.End(nil)
	span.End(errors.New("late"))

	if n := strings.Count(buf.String(), "\n"); n != 1 {
		t.Errorf("expected exactly one log line, got %d", n)
	}
}

func TestSpan_Accessors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	span := Start(logger, codes.GET, "x")
	if span.RequestID() == "" {
		t.Error("RequestID() should not be empty")
	}

	span.SetURL("http://localhost/x")
	if span.URL() != "http://localhost/x" {
		t.Errorf("URL() = %q", span.URL())
	}

	span.SetStatus(500)
	if span.Status() != 500 {
		t.Errorf("Status() = %d, want 500", span.Status())
	}
}

func TestSpan_UniqueRequestIDs(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a := Start(logger, codes.GET, "x")
	b := Start(logger, codes.GET, "x")
	if a.RequestID() == b.RequestID() {
		t.Error("two spans share a request ID")
	}
}
