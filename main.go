package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/authgate/authgate/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := app.ExecuteContext(ctx)

	stop()

	if err != nil {
		os.Exit(1)
	}
}
