package config

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"Valid", "[origin]\nthird_party = [\"vendored.*\"]\n", ""},
		{"Version", "version = 3\n", "unsupported config version"},
		{"BadGlob", "[origin]\nlocal = [\"[unclosed\"]\n", "origin.local[0]"},
		{"BadBuiltin", "[resolve]\nbuiltins = [\"not-a-name\"]\n", "resolve.builtins[0]"},
		{"OutputNotPython", "[bundle]\noutput = \"bundle.txt\"\n", "bundle.output"},
		{"OutputStdout", "[bundle]\noutput = \"-\"\n", ""},
		{"NegativeRate", "[watch]\nmax_rebuilds_per_second = -1.0\n", "max_rebuilds_per_second"},
		{"TracingWithoutEndpoint", "[observability]\nenable_tracing = true\n", "otlp_endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.content)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
