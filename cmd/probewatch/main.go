// Copyright 2021 The go-probeum Authors
// This file is part of the go-probeum library.
//
// The go-probeum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-probeum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-probeum library. If not, see <http://www.gnu.org/licenses/>.

// Command probewatch tails a peer's telemetry log, aggregates it into a
// live model of the overlay network, and serves that model to browser
// dashboards over a WebSocket feed.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/urfave/cli.v1"

	"github.com/probeum/probewatch/dnsreg"
	"github.com/probeum/probewatch/identity"
	"github.com/probeum/probewatch/internal/xlog"
	"github.com/probeum/probewatch/moderation"
	"github.com/probeum/probewatch/session"
	"github.com/probeum/probewatch/supervisor"
)

const clientIdentifier = "probewatch"

var gitCommit = "" // set via -ldflags at build time

var versionCommand = cli.Command{
	Action: func(ctx *cli.Context) error {
		fmt.Printf("%s\n", clientIdentifier)
		if gitCommit != "" {
			fmt.Printf("Git Commit: %s\n", gitCommit)
		}
		return nil
	},
	Name:  "version",
	Usage: "Print version number",
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = clientIdentifier
	app.Usage = "Real-time telemetry aggregator and dashboard feed for a probeum peer overlay"
	app.Flags = appFlags
	app.Commands = []cli.Command{dumpConfigCommand, versionCommand}
	app.Action = run
	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run is the default action: build every component from the resolved
// configuration and block until an interrupt or terminate signal.
func run(ctx *cli.Context) error {
	cfg := makeConfig(ctx)
	xlog.Root().SetLevel(xlog.Lvl(ctx.GlobalInt(verbosityFlag.Name)))

	printBanner(cfg)

	gatewayAnon := make([]string, len(cfg.GatewayIPs))
	gatewayIPHash := make([]string, len(cfg.GatewayIPs))
	for i, ip := range cfg.GatewayIPs {
		gatewayAnon[i] = identity.AnonymizeIP(ip)
		gatewayIPHash[i] = identity.SelfIDHash(ip)
	}

	supCfg := supervisor.Config{
		TelemetryLogPath: cfg.TelemetryLog,
		NamesPath:        cfg.NamesFile,
		ListenAddr:       cfg.Listen,
		Metrics:          cfg.Metrics,
		Session: session.Config{
			GatewayIPs:    cfg.GatewayIPs,
			GatewayAnon:   gatewayAnon,
			GatewayIPHash: gatewayIPHash,
			TrustProxy:    cfg.TrustProxy,
		},
	}

	// No external moderation classifier is configured by default; the
	// Sanitizer falls back to its local regex path, per §4.6.
	san := moderation.NewSanitizer(nil)

	sv, err := supervisor.New(supCfg, san)
	if err != nil {
		return fmt.Errorf("building server: %w", err)
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DNS.Provider != "" {
		go dnsreg.RegisterBestEffort(runCtx, cfg.DNS, publicIPHint(cfg))
	}

	xlog.Info("probewatch starting", "listen", cfg.Listen, "telemetry_log", cfg.TelemetryLog)
	return sv.Run(runCtx)
}

// publicIPHint is a best-effort guess at this host's own public address
// for the optional DNS upsert step; operators who need this feature on
// a host without a simple answer should set dns.hostname to a value
// their own infra resolves and leave dns.provider unset instead.
func publicIPHint(cfg appConfig) string {
	if len(cfg.GatewayIPs) > 0 {
		return cfg.GatewayIPs[0]
	}
	return ""
}

func printBanner(cfg appConfig) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Setting", "Value"})
	table.Append([]string{"Listen", cfg.Listen})
	table.Append([]string{"Telemetry log", cfg.TelemetryLog})
	table.Append([]string{"Names file", cfg.NamesFile})
	table.Append([]string{"Capacity", fmt.Sprintf("%d (%d reserved priority)", session.Capacity, session.ReservedPriority)})
	table.Append([]string{"Gateways", fmt.Sprintf("%d configured", len(cfg.GatewayIPs))})
	table.Append([]string{"Metrics", fmt.Sprintf("%v", cfg.Metrics.Enabled)})
	table.Render()
}
