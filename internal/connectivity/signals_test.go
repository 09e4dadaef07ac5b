//go:build !windows

package connectivity

import (
	"context"
	"syscall"
	"testing"
	"time"

	"aaronromeo.com/inboxsweep/pkg/mock"
	"github.com/stretchr/testify/assert"
)

func TestListenSignals(t *testing.T) {
	logger := mock.SetupLogger(t)
	w := NewWatcher(true, WithLogger(logger))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ListenSignals(ctx, w, logger)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	// Give signal.Notify a moment to register before raising.
	time.Sleep(20 * time.Millisecond)

	assert.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR2))
	assert.Eventually(t, func() bool { return !w.Online() }, time.Second, time.Millisecond)

	assert.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))
	assert.Eventually(t, w.Online, time.Second, time.Millisecond)
}
