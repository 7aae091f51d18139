// Package main implements the studycache command: the HTTP service that
// fronts the study-aid backend with a persisted query cache, plus operator
// commands for migrations, cache maintenance, review scoring and tokens.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
