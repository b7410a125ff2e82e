package reconnect

import (
	"testing"
	"time"

	"github.com/matheus3301/wpphub/internal/conn"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name string
		sig  Signal
		want Action
	}{
		{"restart required", Signal{Reason: conn.ReasonRestartRequired}, Retry},
		{"logged out", Signal{Reason: conn.ReasonLoggedOut}, DestroyAndWipe},
		{"logged out after stop", Signal{Reason: conn.ReasonLoggedOut, StopRequested: true}, DestroyAndWipe},
		{"connection replaced", Signal{Reason: conn.ReasonConnectionReplaced}, Destroy},
		{"stop requested", Signal{Reason: conn.ReasonClosed, StopRequested: true}, Noop},
		{"stop requested beats restart", Signal{Reason: conn.ReasonRestartRequired, StopRequested: true}, Noop},
		{"connection lost", Signal{Reason: conn.ReasonConnectionLost}, Retry},
		{"timed out", Signal{Reason: conn.ReasonTimedOut}, Retry},
		{"unknown", Signal{Reason: conn.ReasonUnknown}, Retry},
		{"temp banned", Signal{Reason: conn.ReasonTempBanned}, Retry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.sig); got != tt.want {
				t.Errorf("Decide(%+v) = %s, want %s", tt.sig, got, tt.want)
			}
		})
	}
}

func TestImmediate(t *testing.T) {
	if !Immediate(conn.ReasonRestartRequired) {
		t.Error("restart required should retry immediately")
	}
	if Immediate(conn.ReasonConnectionLost) {
		t.Error("connection lost should back off")
	}
}

func TestBackoffSequence(t *testing.T) {
	b := NewBackoff(BackoffConfig{InitialDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2})

	want := []time.Duration{0, time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("Next() #%d = %s, want %s", i, got, w)
		}
	}
}

func TestBackoffReset(t *testing.T) {
	b := NewBackoff(BackoffConfig{InitialDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2})
	for range 4 {
		b.Next()
	}

	b.Reset()
	if got := b.Next(); got != 0 {
		t.Errorf("Next() after Reset = %s, want 0", got)
	}
	if got := b.Next(); got != time.Second {
		t.Errorf("second Next() after Reset = %s, want 1s", got)
	}
}

func TestBackoffJitterStaysInBounds(t *testing.T) {
	b := NewBackoff(BackoffConfig{InitialDelay: time.Second, MaxDelay: 8 * time.Second, Multiplier: 2, Jitter: true})
	b.Next()
	for i := 1; i < 20; i++ {
		d := b.Next()
		if d < 750*time.Millisecond || d > 8*time.Second {
			t.Fatalf("Next() #%d = %s out of bounds", i, d)
		}
	}
}

func TestNewBackoffDefaults(t *testing.T) {
	b := NewBackoff(BackoffConfig{})
	b.Next()
	if got := b.Next(); got != 2*time.Second {
		t.Errorf("first delayed Next() = %s, want default 2s", got)
	}
}
