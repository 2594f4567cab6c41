package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/groupify/backend/internal/app"
)

func main() {
	ctx := context.Background()
	if err := app.Run(ctx, os.Args[1:]); err != nil {
		slog.Error("groupify exited", "error", err)
		os.Exit(1)
	}
}
