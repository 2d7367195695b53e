package render

import (
	"testing"
	"time"
)

func TestParseChrono(t *testing.T) {
	tests := []struct {
		in   string
		want string // RFC3339 of expected instant; "" means parse failure
	}{
		{"2024-01-15T10:30:00Z", "2024-01-15T10:30:00Z"},
		{"2024-01-15 10:30:00", "2024-01-15T10:30:00Z"},
		{"2024-01-15", "2024-01-15T00:00:00Z"},
		{"2024/01/15", "2024-01-15T00:00:00Z"},
		{"2024-01", "2024-01-01T00:00:00Z"},
		{"2024", "2024-01-01T00:00:00Z"},
		{"Jan 2024", "2024-01-01T00:00:00Z"},
		{"January 2024", "2024-01-01T00:00:00Z"},
		{"Jan 15, 2024", "2024-01-15T00:00:00Z"},
		{" 2024-02 ", "2024-02-01T00:00:00Z"},
		{"Q1", ""},
		{"North", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseChrono(tt.in)
			if tt.want == "" {
				if ok {
					t.Fatalf("parseChrono(%q) parsed to %v, want failure", tt.in, got)
				}
				return
			}
			want, err := time.Parse(time.RFC3339, tt.want)
			if err != nil {
				t.Fatal(err)
			}
			if !ok || !got.Equal(want) {
				t.Errorf("parseChrono(%q) = %v, %v; want %v", tt.in, got, ok, want)
			}
		})
	}
}

func TestChronoLess(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"both parse", "2024-01", "2024-02", true},
		{"both parse reversed", "2024-02", "2024-01", false},
		{"year precision", "2023", "2024-01", true},
		{"left unparseable falls back to strings", "Q1", "2024-01", false},
		{"right unparseable falls back to strings", "2024-01", "Q1", true},
		{"neither parses", "apple", "banana", true},
		{"equal strings", "Q1", "Q1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := chronoLess(tt.a, tt.b); got != tt.want {
				t.Errorf("chronoLess(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
