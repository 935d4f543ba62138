// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// alluviumd keeps kernel IP sets synchronized with the current DNS
// resolutions of operator-declared domain lists.
//
// Usage:
//
//	alluviumd [ctl_path]
package main

import (
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"grimm.is/alluviumd/internal/clock"
	"grimm.is/alluviumd/internal/daemon"
	"grimm.is/alluviumd/internal/dnsresolver"
	"grimm.is/alluviumd/internal/ipsetbackend"
	"grimm.is/alluviumd/internal/logging"
	"grimm.is/alluviumd/internal/metrics"
	"grimm.is/alluviumd/internal/registry"
)

// defaultCtlPath is the control socket path used when no positional
// argument is given.
const defaultCtlPath = "/var/run/alluvium_ctl"

func main() {
	logLevel := flag.String("log-level", "info", "log level: debug, info, notice, error")
	metricsAddr := flag.String("metrics-addr", "", "address to serve Prometheus /metrics on (empty disables it)")
	flag.Parse()

	ctlPath := defaultCtlPath
	if flag.NArg() > 1 {
		fmt.Fprintln(os.Stderr, "usage: alluviumd [ctl_path]")
		os.Exit(1)
	}
	if flag.NArg() == 1 {
		ctlPath = flag.Arg(0)
	}

	logger := logging.New(logging.Config{Output: os.Stderr, Level: logging.ParseLevel(*logLevel)})

	if err := run(ctlPath, *metricsAddr, logger); err != nil {
		logger.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run(ctlPath, metricsAddr string, logger *logging.Logger) error {
	resolver, err := dnsresolver.NewStubResolver()
	if err != nil {
		return fmt.Errorf("initializing DNS subsystem: %w", err)
	}

	promReg := prometheus.NewRegistry()
	mx := metrics.New(promReg)
	if metricsAddr != "" {
		go serveMetrics(metricsAddr, promReg, logger)
	}

	backend := ipsetbackend.NewCLI()
	clk := clock.Real{}
	reg := registry.New(resolver, backend, clk, logger, mx)

	listener, err := listenControlSocket(ctlPath)
	if err != nil {
		return fmt.Errorf("binding control socket: %w", err)
	}
	defer listener.Close()

	logger.Info("starting", "ctl_path", ctlPath)
	d := daemon.New(reg, clk, logger, mx, listener)
	if err := d.Run(); err != nil {
		return fmt.Errorf("event loop: %w", err)
	}
	logger.Info("shut down cleanly")
	return nil
}

// listenControlSocket unlinks any stale socket file left by a prior run
// before binding. The listener keeps net.Listen's default backlog; a second
// concurrent client is refused by daemon.acceptLoop, not by the backlog.
func listenControlSocket(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale socket %s: %w", path, err)
	}
	return net.Listen("unix", path)
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	logger.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server failed", "error", err)
	}
}
