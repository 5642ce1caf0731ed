package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/ghalamif/TelemetryLogger/pkg/telemetrylogger"
)

func main() {
	flow, err := telemetrylogger.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	overspeed := func(r telemetrylogger.Record) error {
		if r.Speed > 130 {
			fmt.Printf("%s overspeed %.1f km/h at %.5f,%.5f\n", r.Timestamp, r.Speed, r.Lat, r.Lon)
		}
		return nil
	}

	if err := flow.Run(ctx,
		telemetrylogger.StreamOutCallback("overspeed", overspeed),
		telemetrylogger.StreamOutConsole(nil),
	); err != nil {
		log.Fatalf("runtime error: %v", err)
	}
}
