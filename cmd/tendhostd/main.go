// SPDX-License-Identifier: BSD-3-Clause

// Command tendhostd is tendhost's control-plane daemon: it loads a fleet
// configuration, registers every host with a supervisor, and keeps each
// host's state machine running for the life of the process.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cirello.io/oversight/v2"

	"github.com/tendhost/tendhost/pkg/log"
	"github.com/tendhost/tendhost/pkg/process"
	"github.com/tendhost/tendhost/pkg/telemetry"
	"github.com/tendhost/tendhost/service/operator"
)

func main() {
	configPath := flag.String("config", "/etc/tendhost/fleet.yaml", "path to the fleet configuration file")
	collectorTTL := flag.Duration("inventory-ttl", 30*time.Second, "cache TTL for the osquery-backed inventory snapshot")
	registerTimeout := flag.Duration("register-timeout", 10*time.Second, "per-host timeout for registration at startup")
	flag.Parse()

	l := log.GetGlobalLogger()

	op := operator.New(
		operator.WithConfigPath(*configPath),
		operator.WithTimeout(*registerTimeout),
		operator.WithCollectorTTL(*collectorTTL),
		operator.WithTelemetry(telemetry.WithServiceName("tendhostd")),
	)

	tree := oversight.New(
		oversight.NeverHalt(),
		oversight.DefaultRestartStrategy(),
		oversight.WithLogger(log.NewOversightLogger(l)),
	)
	if err := tree.Add(process.New(op), oversight.Transient(), oversight.Timeout(15*time.Second), op.Name()); err != nil {
		l.Error("failed to add control plane to supervision tree", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	l.Info("starting tendhostd", "config", *configPath)
	if err := tree.Start(ctx); err != nil && ctx.Err() == nil {
		l.Error("supervision tree exited with error", "error", err)
		os.Exit(1)
	}
}
