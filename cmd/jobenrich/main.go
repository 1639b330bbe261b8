package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/munistat/jobenrich/internal/cli"
)

func main() {
	// Best effort: a missing .env is the normal case in production.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := cli.Execute(ctx)
	stop()
	os.Exit(code)
}
