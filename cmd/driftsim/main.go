// Command driftsim is a synthetic traffic generator for DriftWatch: it reads
// a YAML scenario describing per-service latency/payload distributions and
// posts samples to a running driftwatchd's /v1/ingest endpoint at a
// configured rate. It exercises the scenarios described informally as
// "baseline ready", "severe spike", "moderate density", "recovery", and
// "backpressure" end to end against a live daemon, the same way
// cmd/rook/main.go's runAgent wires flags to a long-running component.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	fs := flag.NewFlagSet("driftsim", flag.ExitOnError)
	scenarioPath := fs.String("scenario", "", "path to scenario YAML file")
	fs.Parse(os.Args[1:])

	if *scenarioPath == "" {
		fmt.Fprintln(os.Stderr, "usage: driftsim -scenario <path>")
		os.Exit(1)
	}

	sc, err := LoadScenario(*scenarioPath)
	if err != nil {
		slog.Error("failed to load scenario", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := slog.Default()
	runner := NewRunner(sc.Target, log)

	log.Info("driftsim starting", "target", sc.Target, "services", len(sc.Services))
	results := runner.Run(ctx, sc)

	exitCode := 0
	for _, res := range results {
		log.Info("service run complete",
			"service_id", res.ServiceID,
			"sent", res.Sent,
			"accepted", res.Accepted,
			"rejected", res.Rejected,
			"failed", res.Failed,
		)
		if res.Failed > 0 {
			exitCode = 1
		}
	}
	os.Exit(exitCode)
}
