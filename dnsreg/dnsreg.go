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

// Package dnsreg optionally upserts a DNS record pointing at this
// server's public endpoint on boot, so operators can point a stable
// hostname at whichever instance is currently serving the dashboard.
// Both registrars are no-ops unless explicitly configured, and a
// failure here only logs a warning — it never blocks server start.
package dnsreg

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	r53types "github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/cloudflare/cloudflare-go"

	"github.com/probeum/probewatch/internal/xlog"
)

// Registrar upserts a single A record for hostname -> ip.
type Registrar interface {
	Upsert(ctx context.Context, hostname, ip string) error
}

// Config selects and configures at most one registrar.
type Config struct {
	Provider string // "route53", "cloudflare", or "" to disable
	Hostname string

	Route53ZoneID string

	CloudflareAPIToken string
	CloudflareZoneID   string
}

// Build returns the configured Registrar, or nil if dns registration is
// disabled.
func Build(ctx context.Context, cfg Config) (Registrar, error) {
	switch cfg.Provider {
	case "route53":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, err
		}
		return &route53Registrar{client: route53.NewFromConfig(awsCfg), zoneID: cfg.Route53ZoneID}, nil
	case "cloudflare":
		api, err := cloudflare.NewWithAPIToken(cfg.CloudflareAPIToken)
		if err != nil {
			return nil, err
		}
		return &cloudflareRegistrar{api: api, zoneID: cfg.CloudflareZoneID}, nil
	default:
		return nil, nil
	}
}

// RegisterBestEffort runs Build+Upsert and only logs on failure.
func RegisterBestEffort(ctx context.Context, cfg Config, publicIP string) {
	log := xlog.Root().New("component", "dnsreg")
	if cfg.Provider == "" {
		return
	}
	reg, err := Build(ctx, cfg)
	if err != nil || reg == nil {
		if err != nil {
			log.Warn("dns registrar init failed", "err", err)
		}
		return
	}
	if err := reg.Upsert(ctx, cfg.Hostname, publicIP); err != nil {
		log.Warn("dns upsert failed", "err", err)
		return
	}
	log.Info("dns record updated", "hostname", cfg.Hostname, "ip", publicIP)
}

type route53Registrar struct {
	client *route53.Client
	zoneID string
}

func (r *route53Registrar) Upsert(ctx context.Context, hostname, ip string) error {
	ttl := int64(60)
	_, err := r.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(r.zoneID),
		ChangeBatch: &r53types.ChangeBatch{
			Changes: []r53types.Change{
				{
					Action: r53types.ChangeActionUpsert,
					ResourceRecordSet: &r53types.ResourceRecordSet{
						Name: aws.String(hostname),
						Type: r53types.RRTypeA,
						TTL:  aws.Int64(ttl),
						ResourceRecords: []r53types.ResourceRecord{
							{Value: aws.String(ip)},
						},
					},
				},
			},
		},
	})
	return err
}

type cloudflareRegistrar struct {
	api    *cloudflare.API
	zoneID string
}

func (c *cloudflareRegistrar) Upsert(ctx context.Context, hostname, ip string) error {
	rc := cloudflare.ZoneIdentifier(c.zoneID)
	existing, _, err := c.api.ListDNSRecords(ctx, rc, cloudflare.ListDNSRecordsParams{Type: "A", Name: hostname})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		_, err := c.api.UpdateDNSRecord(ctx, rc, cloudflare.UpdateDNSRecordParams{
			ID: existing[0].ID, Type: "A", Name: hostname, Content: ip, TTL: 60,
		})
		return err
	}
	_, err = c.api.CreateDNSRecord(ctx, rc, cloudflare.CreateDNSRecordParams{
		Type: "A", Name: hostname, Content: ip, TTL: 60,
	})
	return err
}
