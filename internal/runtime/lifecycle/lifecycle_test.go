package lifecycle

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	logx "remindbot/pkg/logx"
)

func TestReasonFromSignal(t *testing.T) {
	t.Parallel()
	tests := []struct {
		sig  os.Signal
		want StopReason
	}{
		{os.Interrupt, StopSIGINT},
		{syscall.SIGTERM, StopSIGTERM},
		{syscall.SIGHUP, StopUnknown},
	}
	for _, tt := range tests {
		if got := ReasonFromSignal(tt.sig); got != tt.want {
			t.Fatalf("ReasonFromSignal(%v) = %q, want %q", tt.sig, got, tt.want)
		}
	}
}

func TestNotifierOutsideSystemdIsNoop(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	t.Setenv("WATCHDOG_USEC", "")
	n := NewNotifier(logx.Nop())
	n.Ready()
	n.Stopping()

	done := make(chan struct{})
	go func() {
		n.Watchdog(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watchdog should return immediately when disabled")
	}
}
