package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"callingest/internal/services"
)

// exitCancelled matches the shell convention for SIGINT.
const exitCancelled = 130

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	err := cmd.ExecuteContext(ctx)
	os.Exit(exitCode(err, ctx.Err() != nil))
}

func exitCode(err error, interrupted bool) int {
	switch {
	case err == nil:
		return 0
	case services.IsCancellation(err) || interrupted:
		fmt.Fprintln(os.Stderr, "cancelled")
		return exitCancelled
	default:
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
}
