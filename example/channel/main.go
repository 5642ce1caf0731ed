package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	telemetrylogger "github.com/ghalamif/TelemetryLogger"
)

func main() {
	flow, err := telemetrylogger.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, records, closeRecords := telemetrylogger.NewChannelSink("fanout", 32)
	defer closeRecords()

	go averageWorker(records, 10*time.Second)

	if err := flow.Run(ctx, telemetrylogger.StreamOutSink(sink)); err != nil {
		log.Fatalf("runtime error: %v", err)
	}
}

// averageWorker prints the mean speed seen in each window.
func averageWorker(records <-chan telemetrylogger.Record, window time.Duration) {
	ticker := time.NewTicker(window)
	defer ticker.Stop()

	var sum float64
	var n int
	for {
		select {
		case r, ok := <-records:
			if !ok {
				return
			}
			sum += r.Speed
			n++
		case <-ticker.C:
			if n > 0 {
				fmt.Printf("[%s] avg speed %.1f km/h over %d records\n", time.Now().Format(time.RFC3339), sum/float64(n), n)
			}
			sum, n = 0, 0
		}
	}
}
