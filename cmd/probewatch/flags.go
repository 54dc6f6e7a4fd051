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

package main

import "gopkg.in/urfave/cli.v1"

var (
	configFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	listenFlag = cli.StringFlag{
		Name:  "listen",
		Usage: "HTTP/WebSocket listen address",
		Value: defaultConfig().Listen,
	}
	telemetryLogFlag = cli.StringFlag{
		Name:  "telemetry.log",
		Usage: "path to the peer telemetry log to tail",
		Value: defaultConfig().TelemetryLog,
	}
	namesFileFlag = cli.StringFlag{
		Name:  "names.file",
		Usage: "path to the persisted peer display-name map",
		Value: defaultConfig().NamesFile,
	}
	trustProxyFlag = cli.BoolFlag{
		Name:  "trust-proxy",
		Usage: "honor X-Forwarded-For when determining a client's address",
	}
	gatewayFlag = cli.StringSliceFlag{
		Name:  "gateway",
		Usage: "known gateway peer IP (repeatable); these connections are always admitted as priority",
	}
	verbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Usage: "logging verbosity: 0=crit 1=error 2=warn 3=info 4=debug 5=trace",
		Value: 3,
	}

	metricsEnabledFlag = cli.BoolFlag{
		Name:  "metrics",
		Usage: "enable the in-process metrics registry",
	}
	metricsInfluxDBFlag = cli.BoolFlag{
		Name:  "metrics.influxdb",
		Usage: "push metrics to InfluxDB",
	}
	metricsInfluxDBEndpointFlag = cli.StringFlag{
		Name:  "metrics.influxdb.endpoint",
		Usage: "InfluxDB HTTP endpoint",
		Value: "http://localhost:8086",
	}
	metricsInfluxDBDatabaseFlag = cli.StringFlag{
		Name:  "metrics.influxdb.database",
		Usage: "InfluxDB database name",
		Value: "probewatch",
	}

	dnsProviderFlag = cli.StringFlag{
		Name:  "dns.provider",
		Usage: `DNS registrar to use on boot: "route53", "cloudflare", or empty to disable`,
	}
	dnsHostnameFlag = cli.StringFlag{
		Name:  "dns.hostname",
		Usage: "hostname to upsert an A record for",
	}

	appFlags = []cli.Flag{
		configFileFlag,
		listenFlag,
		telemetryLogFlag,
		namesFileFlag,
		trustProxyFlag,
		gatewayFlag,
		verbosityFlag,
		metricsEnabledFlag,
		metricsInfluxDBFlag,
		metricsInfluxDBEndpointFlag,
		metricsInfluxDBDatabaseFlag,
		dnsProviderFlag,
		dnsHostnameFlag,
	}
)
