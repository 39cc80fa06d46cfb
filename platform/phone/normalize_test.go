package phone

import (
	"errors"
	"testing"
)

func TestParseE164(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		region  string
		want    string
		wantErr bool
	}{
		{name: "national us number", input: "(202) 555-0143", region: "US", want: "+12025550143"},
		{name: "already international", input: "+44 20 7946 0958", region: "US", want: "+442079460958"},
		{name: "empty", input: "  ", region: "US", wantErr: true},
		{name: "garbage", input: "call me", region: "US", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseE164(tt.input, tt.region)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidNumber) {
					t.Fatalf("expected ErrInvalidNumber, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestNormalizeE164FallsBackToTrimmedInput(t *testing.T) {
	if got := NormalizeE164("  not a number "); got != "not a number" {
		t.Fatalf("unexpected fallback %q", got)
	}
}
