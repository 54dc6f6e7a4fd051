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

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"
	"unicode"

	"github.com/naoina/toml"
	"gopkg.in/urfave/cli.v1"

	"github.com/probeum/probewatch/dnsreg"
	"github.com/probeum/probewatch/metrics"
)

// tomlSettings mirrors the teacher's gprobe config conventions: TOML
// keys match Go struct field names verbatim, and an unrecognized field
// is a hard decode error rather than being silently ignored.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		id := fmt.Sprintf("%s.%s", rt.String(), field)
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://godoc.org/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// appConfig is the full on-disk/flag-derived configuration for the
// probewatch server.
type appConfig struct {
	Listen       string
	TelemetryLog string
	NamesFile    string
	TrustProxy   bool
	GatewayIPs   []string
	Metrics      metrics.Config
	DNS          dnsreg.Config
}

func defaultConfig() appConfig {
	return appConfig{
		Listen:       "0.0.0.0:8080",
		TelemetryLog: "/var/log/probewatch/telemetry.log",
		NamesFile:    "probewatch-names.json",
		Metrics:      metrics.DefaultConfig,
	}
}

func loadConfigFile(file string, cfg *appConfig) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

// makeConfig loads defaults, then a config file (if given), then
// applies any explicitly-set flags on top, matching the teacher's
// layering order in cmd/gprobe/config.go.
func makeConfig(ctx *cli.Context) appConfig {
	cfg := defaultConfig()

	if file := ctx.GlobalString(configFileFlag.Name); file != "" {
		if err := loadConfigFile(file, &cfg); err != nil {
			fatalf("%v", err)
		}
	}

	if ctx.GlobalIsSet(listenFlag.Name) {
		cfg.Listen = ctx.GlobalString(listenFlag.Name)
	}
	if ctx.GlobalIsSet(telemetryLogFlag.Name) {
		cfg.TelemetryLog = ctx.GlobalString(telemetryLogFlag.Name)
	}
	if ctx.GlobalIsSet(namesFileFlag.Name) {
		cfg.NamesFile = ctx.GlobalString(namesFileFlag.Name)
	}
	if ctx.GlobalIsSet(trustProxyFlag.Name) {
		cfg.TrustProxy = ctx.GlobalBool(trustProxyFlag.Name)
	}
	if ctx.GlobalIsSet(gatewayFlag.Name) {
		cfg.GatewayIPs = ctx.GlobalStringSlice(gatewayFlag.Name)
	}
	if ctx.GlobalIsSet(metricsEnabledFlag.Name) {
		cfg.Metrics.Enabled = ctx.GlobalBool(metricsEnabledFlag.Name)
	}
	if ctx.GlobalIsSet(metricsInfluxDBFlag.Name) {
		cfg.Metrics.EnableInfluxDB = ctx.GlobalBool(metricsInfluxDBFlag.Name)
	}
	if ctx.GlobalIsSet(metricsInfluxDBEndpointFlag.Name) {
		cfg.Metrics.InfluxDBEndpoint = ctx.GlobalString(metricsInfluxDBEndpointFlag.Name)
	}
	if ctx.GlobalIsSet(metricsInfluxDBDatabaseFlag.Name) {
		cfg.Metrics.InfluxDBDatabase = ctx.GlobalString(metricsInfluxDBDatabaseFlag.Name)
	}
	if ctx.GlobalIsSet(dnsProviderFlag.Name) {
		cfg.DNS.Provider = ctx.GlobalString(dnsProviderFlag.Name)
	}
	if ctx.GlobalIsSet(dnsHostnameFlag.Name) {
		cfg.DNS.Hostname = ctx.GlobalString(dnsHostnameFlag.Name)
	}

	return cfg
}

var dumpConfigCommand = cli.Command{
	Action:    dumpConfig,
	Name:      "dumpconfig",
	Usage:     "Show configuration values",
	ArgsUsage: "",
	Flags:     appFlags,
	Description: `The dumpconfig command shows the fully resolved configuration
(defaults, config file, and flags merged) without starting the server.`,
}

func dumpConfig(ctx *cli.Context) error {
	cfg := makeConfig(ctx)
	out, err := tomlSettings.Marshal(&cfg)
	if err != nil {
		return err
	}
	os.Stdout.Write(out)
	return nil
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Fatal: "+format+"\n", args...)
	os.Exit(1)
}
