package model

import "testing"

func TestParseQuery(t *testing.T) {
	tests := []struct {
		raw  string
		want QueryParam
	}{
		{"limit=5", QueryParam{Key: "limit", Value: "5", HasValue: true}},
		{"access_token=abc", QueryParam{Key: "access_token", Value: "abc", HasValue: true}},
		{"flag", QueryParam{Key: "flag"}},
		{"flag=", QueryParam{Key: "flag", Value: "", HasValue: true}},
		{"a=b=c", QueryParam{Key: "a", Value: "b=c", HasValue: true}},
		{"", QueryParam{Key: ""}},
		{"=v", QueryParam{Key: "", Value: "v", HasValue: true}},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := ParseQuery(tt.raw); got != tt.want {
				t.Errorf("ParseQuery(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}
