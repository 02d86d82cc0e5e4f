package queue

import (
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	base := 1 * time.Second
	max := 60 * time.Second

	tests := []struct {
		name    string
		attempt int
		want    time.Duration
	}{
		{"attempt 0", 0, 1 * time.Second},
		{"attempt 1", 1, 2 * time.Second},
		{"attempt 2", 2, 4 * time.Second},
		{"attempt 3", 3, 8 * time.Second},
		{"attempt 5", 5, 32 * time.Second},
		{"capped at max", 6, 60 * time.Second},
		{"far past cap", 20, 60 * time.Second},
		{"shift overflow guard", 40, 60 * time.Second},
		{"negative attempt", -1, 1 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Backoff(base, max, tt.attempt); got != tt.want {
				t.Errorf("Backoff(%v, %v, %d) = %v, want %v", base, max, tt.attempt, got, tt.want)
			}
		})
	}
}
