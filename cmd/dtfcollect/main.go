package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"dtfcollect/cmd/dtfcollect/commands"
	"dtfcollect/lib/serviceutil"
	"dtfcollect/lib/telemetry"
)

func main() {
	ctx := serviceutil.SignalContext()
	if err := telemetry.SetupFromEnv(ctx, "dtfcollect"); err != nil {
		slog.Warn("failed to set up telemetry", "err", err)
	}

	err := commands.ExecuteContext(ctx)

	// flush buffered spans and metrics before the process goes away
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	if shutdownErr := telemetry.Shutdown(shutdownCtx); shutdownErr != nil {
		slog.Warn("failed to shut down telemetry", "err", shutdownErr)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
