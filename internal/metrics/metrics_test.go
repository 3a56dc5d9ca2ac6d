package metrics

import (
	"testing"

	"github.com/plgd-dev/go-coap/v3/message/codes"

	"coap-bridge/internal/model"
)

func TestNew_GathersMetrics(t *testing.T) {
	m := New()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	// Should include at least Go runtime and process collectors.
	if len(families) == 0 {
		t.Fatal("expected non-empty metric families from Gather()")
	}

	// Verify our custom metrics exist by incrementing one and gathering again.
	m.RequestsTotal.WithLabelValues("GET", OutcomeSuccess).Inc()
	m.BackendResponses.WithLabelValues("GET", "200").Inc()

	families, err = m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	want := map[string]bool{
		"coap_bridge_requests_total":          false,
		"coap_bridge_backend_responses_total": false,
	}
	for _, f := range families {
		if _, ok := want[f.GetName()]; ok {
			want[f.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected %s in gathered metrics", name)
		}
	}
}

func TestNormalizeMethod(t *testing.T) {
	tests := []struct {
		name string
		code codes.Code
		want string
	}{
		{"GET", codes.GET, "GET"},
		{"POST", codes.POST, "POST"},
		{"PUT", codes.PUT, "PUT"},
		{"DELETE", codes.DELETE, "DELETE"},
		{"PATCH", model.CodePATCH, "PATCH"},
		{"FETCH is other", codes.Code(5), "other"},
		{"iPATCH is other", codes.Code(7), "other"},
		{"empty is other", codes.Empty, "other"},
		{"response code is other", codes.Content, "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeMethod(tt.code); got != tt.want {
				t.Errorf("NormalizeMethod(%v) = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}
