//go:build !windows

package connectivity

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

var signalTransitions = map[os.Signal]Transition{
	syscall.SIGUSR1: Online,
	syscall.SIGUSR2: Offline,
	syscall.SIGCONT: Visible,
}

// ListenSignals feeds w from process signals until ctx ends:
// SIGUSR1 reports online, SIGUSR2 offline and SIGCONT visible.
func ListenSignals(ctx context.Context, w *Watcher, logger *slog.Logger) {
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGCONT)
	defer signal.Stop(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-ch:
			t := signalTransitions[sig]
			logger.DebugContext(ctx, "connectivity signal", slog.String("signal", sig.String()), slog.String("transition", string(t)))
			w.Report(ctx, t)
		}
	}
}
