package main

import "testing"

func TestBaseURL(t *testing.T) {
	tests := []struct {
		listen string
		want   string
	}{
		{":5000", "http://127.0.0.1:5000"},
		{"0.0.0.0:8080", "http://127.0.0.1:8080"},
		{"[::]:8080", "http://127.0.0.1:8080"},
		{"10.0.0.2:5000", "http://10.0.0.2:5000"},
		{"localhost", "http://localhost"},
	}
	for _, tt := range tests {
		if got := baseURL(tt.listen); got != tt.want {
			t.Errorf("baseURL(%q) = %q, want %q", tt.listen, got, tt.want)
		}
	}
}
