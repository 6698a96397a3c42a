package models

import "testing"

func TestUsageRatio(t *testing.T) {
	tests := []struct {
		usage    float64
		capacity float64
		want     float64
	}{
		{usage: 250, capacity: 1000, want: 0.25},
		{usage: 1100, capacity: 1000, want: 1.1},
		{usage: 0, capacity: 1000, want: 0},
		{usage: 500, capacity: 0, want: 0}, // guard against division by zero
	}
	for _, tt := range tests {
		s := ProxyServer{CurrentUsage: tt.usage, CapacityLimit: tt.capacity}
		if got := s.UsageRatio(); got != tt.want {
			t.Fatalf("UsageRatio(%v/%v) = %v, want %v", tt.usage, tt.capacity, got, tt.want)
		}
	}
}

func TestHasHeadroom(t *testing.T) {
	s := ProxyServer{CurrentUsage: 999.99, CapacityLimit: 1000}
	if !s.HasHeadroom() {
		t.Fatalf("expected headroom below the limit")
	}
	s.CurrentUsage = 1000
	if s.HasHeadroom() {
		t.Fatalf("expected no headroom at the limit")
	}
}

func TestValidate(t *testing.T) {
	valid := ProxyServer{
		Name:          "Primary",
		URL:           "https://proxy1.example",
		APIKey:        "pk",
		APISecret:     "sk",
		CapacityLimit: 1000,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid server, got %v", err)
	}

	broken := valid
	broken.URL = "not a url"
	if err := broken.Validate(); err == nil {
		t.Fatalf("expected invalid URL to fail validation")
	}

	broken = valid
	broken.CapacityLimit = 0
	if err := broken.Validate(); err == nil {
		t.Fatalf("expected zero capacity to fail validation")
	}
}

func TestStats(t *testing.T) {
	s := ProxyServer{
		ID:            3,
		Name:          "Primary",
		URL:           "https://proxy1.example",
		CurrentUsage:  500,
		CapacityLimit: 1000,
		IsActive:      true,
		IsSelected:    true,
		Priority:      2,
	}
	stats := s.Stats()
	if stats.ID != 3 || stats.UsageRatio != 0.5 || !stats.IsSelected || stats.Priority != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
