package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	telemetrylogger "github.com/ghalamif/TelemetryLogger"
	"github.com/ghalamif/TelemetryLogger/internal/adapters/sink"
)

const defaultConfigPath = "./data/config.yaml"

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "replay":
		err = replayCommand(os.Args[2:])
	case "query":
		err = queryCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return
	default:
		printUsage(os.Stderr)
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("telemetry-logger %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := pflag.NewFlagSet("run", pflag.ExitOnError)
	cfgPath := fs.StringP("config", "c", defaultConfigPath, "Path to logger configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	flow, err := telemetrylogger.Conf(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return flow.Run(ctx)
}

func validateCommand(args []string) error {
	fs := pflag.NewFlagSet("validate", pflag.ExitOnError)
	cfgPath := fs.StringP("config", "c", defaultConfigPath, "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := telemetrylogger.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	fmt.Printf("config %s looks good: source=%s relational=%s table=%s\n",
		*cfgPath, cfg.Source.Addr, cfg.Relational.Driver, cfg.Relational.Table)
	return nil
}

func statsCommand(args []string) error {
	fs := pflag.NewFlagSet("stats", pflag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(*url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

var statsTargets = []string{
	"telemetry_records_total",
	"telemetry_decode_errors_total",
	"telemetry_validation_errors_total",
	"telemetry_reconnects_total",
	"telemetry_connection_state",
}

func printMetricsSnapshot(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	values, err := scanMetrics(resp.Body, statsTargets)
	if err != nil {
		return err
	}

	fmt.Printf("[%s] records=%.0f decode_errors=%.0f validation_errors=%.0f reconnects=%.0f state=%.0f\n",
		time.Now().Format(time.RFC3339),
		values["telemetry_records_total"],
		values["telemetry_decode_errors_total"],
		values["telemetry_validation_errors_total"],
		values["telemetry_reconnects_total"],
		values["telemetry_connection_state"],
	)
	return nil
}

// scanMetrics picks unlabelled samples for the given names out of the
// Prometheus text format.
func scanMetrics(r io.Reader, names []string) (map[string]float64, error) {
	values := make(map[string]float64, len(names))
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for _, key := range names {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %g", &value); err == nil {
					values[key] = value
				}
			}
		}
	}
	return values, scanner.Err()
}

func replayCommand(args []string) error {
	fs := pflag.NewFlagSet("replay", pflag.ExitOnError)
	cfgPath := fs.StringP("config", "c", defaultConfigPath, "Path to logger configuration file")
	only := fs.StringSlice("sink", nil, "Open only these sinks (csv, sqlite, postgres); entries for other sinks stop the replay")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := telemetrylogger.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dl, err := telemetrylogger.OpenDeadLetter(cfg)
	if err != nil {
		return fmt.Errorf("open dead letter: %w", err)
	}
	defer dl.Close()

	want := sinkFilter(*only)

	var sinks []telemetrylogger.Sink
	defer func() {
		for _, s := range sinks {
			_ = s.Close()
		}
	}()
	if want("csv") {
		csvSink, err := telemetrylogger.OpenTabularSink(cfg)
		if err != nil {
			return fmt.Errorf("open csv sink: %w", err)
		}
		sinks = append(sinks, csvSink)
	}
	if want(cfg.Relational.Driver) {
		sqlSink, err := telemetrylogger.OpenRelationalSink(ctx, cfg)
		if err != nil {
			return fmt.Errorf("open %s sink: %w", cfg.Relational.Driver, err)
		}
		sinks = append(sinks, sqlSink)
	}

	res, err := telemetrylogger.Replay(ctx, dl, sinks, nil)
	fmt.Printf("replayed %d dead-letter entries (committed through %d)\n", res.Replayed, res.Committed)
	return err
}

// sinkFilter matches sink names from --sink. Driver aliases such as
// sqlite3 or postgresql resolve to the name the sink reports.
func sinkFilter(only []string) func(string) bool {
	return func(name string) bool {
		if len(only) == 0 {
			return true
		}
		name = canonicalSinkName(name)
		for _, s := range only {
			if canonicalSinkName(s) == name {
				return true
			}
		}
		return false
	}
}

func canonicalSinkName(name string) string {
	if d, err := sink.ParseDialect(name); err == nil {
		return string(d)
	}
	return strings.ToLower(name)
}

func queryCommand(args []string) error {
	fs := pflag.NewFlagSet("query", pflag.ExitOnError)
	cfgPath := fs.StringP("config", "c", defaultConfigPath, "Path to logger configuration file")
	limit := fs.IntP("limit", "n", 10, "Number of most recent rows to print")
	start := fs.String("start", "", "Inclusive start timestamp (requires --stop)")
	stopTS := fs.String("stop", "", "Inclusive stop timestamp (requires --start)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*start == "") != (*stopTS == "") {
		return errors.New("--start and --stop must be given together")
	}

	cfg, err := telemetrylogger.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reader, closeDB, err := telemetrylogger.OpenReader(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	var rows []telemetrylogger.StoredRecord
	if *start != "" {
		rows, err = reader.Range(ctx, *start, *stopTS)
	} else {
		rows, err = reader.Recent(ctx, *limit)
	}
	if err != nil {
		return err
	}

	for _, row := range rows {
		fmt.Println(telemetrylogger.FormatRow(row.TelemetryRecord))
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stderr, "no rows")
	}
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Telemetry Logger CLI

Usage:
  telemetry-logger <command> [flags]

Commands:
  run        Connect to the telemetry stream and log records until interrupted
  validate   Load and validate a config file without starting the runtime
  stats      Poll the Prometheus metrics endpoint and print live counters
  replay     Re-drive dead-lettered records into their sinks
  query      Print stored rows from the relational sink

Examples:
  telemetry-logger run --config ./data/config.yaml
  telemetry-logger validate -c ./data/config.yaml
  telemetry-logger stats --url http://localhost:9100/metrics --interval 1s
  telemetry-logger replay --config ./data/config.yaml --sink csv
  telemetry-logger query --limit 20
  telemetry-logger query --start 2024-01-01T00:00:00 --stop 2024-01-01T01:00:00
`)
}
