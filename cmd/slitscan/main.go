// SPDX-License-Identifier: GPL-3.0-or-later

// Command slitscan runs the open-proxy/tunnel correlation detector of
// spec section 2, reading candidate endpoints from a named pipe and
// appending structured events to a log file.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/iogf/slitscan/internal/engine"
	"github.com/iogf/slitscan/internal/events"
)

// defaultPipePath is the named pipe SlitScan reads candidates from,
// per spec section 6.
const defaultPipePath = "/var/run/slitscan.fifo"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("slitscan", pflag.ContinueOnError)

	bindAddr := flags.String("callback-addr", "0.0.0.0", "address the connect-back listener binds")
	port := flags.Uint16("port", 1234, "port the connect-back listener binds and advertises")
	advertiseAddr := flags.String("advertise-addr", "", "address advertised in CONNECT requests, defaults to callback-addr")
	pipePath := flags.String("pipe", defaultPipePath, "path to the named pipe candidates are read from")
	logPath := flags.String("log", "", "path to the event log (default: stdout)")
	verbose := flags.Bool("verbose", false, "enable debug logging")

	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	cfg, err := buildConfig(*bindAddr, *advertiseAddr, *port)
	if err != nil {
		fmt.Fprintln(os.Stderr, "slitscan:", err)
		return 2
	}

	logWriter := os.Stdout
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintln(os.Stderr, "slitscan: open log:", err)
			return 1
		}
		defer f.Close()
		logWriter = f
	}
	sink := events.NewLogSink(logWriter)

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	eng, err := engine.New(cfg, *pipePath, sink, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "slitscan: init:", err)
		return 1
	}
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("slitscan starting", "bind", cfg.CallbackBindAddr, "advertise", cfg.CallbackAdvertiseAddr, "pipe", *pipePath)
	if err := eng.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "slitscan: run:", err)
		return 1
	}
	return 0
}

// buildConfig resolves the CLI flags into an [*engine.Config], per
// Open Question (a): the bind and advertise addresses are independent,
// defaulting equal when --advertise-addr is unset.
func buildConfig(bindHost, advertiseHost string, port uint16) (*engine.Config, error) {
	cfg := engine.NewConfig()

	bind, err := netip.ParseAddr(bindHost)
	if err != nil {
		return nil, fmt.Errorf("callback-addr %q: %w", bindHost, err)
	}
	cfg.CallbackBindAddr = netip.AddrPortFrom(bind, port)

	if advertiseHost == "" {
		cfg.CallbackAdvertiseAddr = cfg.CallbackBindAddr
	} else {
		adv, err := netip.ParseAddr(advertiseHost)
		if err != nil {
			return nil, fmt.Errorf("advertise-addr %q: %w", advertiseHost, err)
		}
		cfg.CallbackAdvertiseAddr = netip.AddrPortFrom(adv, port)
	}

	return cfg, nil
}
