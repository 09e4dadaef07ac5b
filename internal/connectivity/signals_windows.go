package connectivity

import (
	"context"
	"log/slog"
)

// ListenSignals waits for ctx; Windows has no user signals to listen to.
func ListenSignals(ctx context.Context, _ *Watcher, logger *slog.Logger) {
	logger.DebugContext(ctx, "connectivity signals are not supported on windows")
	<-ctx.Done()
}
