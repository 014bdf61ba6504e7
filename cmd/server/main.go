package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"roomshare/internal/app"
)

func main() {
	if err := app.LoadEnv(); err != nil {
		log.Fatalf("load .env: %v", err)
	}
	flagSet := flag.NewFlagSet("server", flag.ExitOnError)
	buildConfig := app.ServerFlags(flagSet)
	_ = flagSet.Parse(os.Args[1:])

	cfg, err := buildConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handle, err := app.RunServer(ctx, cfg)
	if err != nil {
		log.Fatalf("server error: %v", err)
	}
	if err := handle.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
