package infra

import (
	"context"
	"testing"
	"time"
)

func TestMonitorExecutableStaysSilentOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	ch := MonitorExecutable(ctx)
	cancel()

	select {
	case <-ch:
		t.Fatal("monitor must only signal on an observed binary change")
	case <-time.After(100 * time.Millisecond):
	}
}
