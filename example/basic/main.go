package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	telemetrylogger "github.com/ghalamif/TelemetryLogger"
)

func main() {
	flow, err := telemetrylogger.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := flow.Run(ctx); err != nil {
		log.Fatalf("telemetry runtime exited: %v", err)
	}
}
