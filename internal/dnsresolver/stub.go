// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package dnsresolver

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"

	"grimm.is/alluviumd/internal/errors"
)

// StubResolver is the production Resolver: it forwards A-queries to the
// system's configured recursive resolvers (/etc/resolv.conf) the way any
// stub resolver does, using github.com/miekg/dns for the wire protocol.
type StubResolver struct {
	client  *dns.Client
	servers []string
}

// NewStubResolver reads /etc/resolv.conf for the nameservers to query.
// The DNS subsystem is initialized once at startup; failure here is fatal
// for the daemon.
func NewStubResolver() (*StubResolver, error) {
	cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "cannot read resolver configuration")
	}
	if len(cfg.Servers) == 0 {
		return nil, errors.New(errors.KindInternal, "no nameservers configured")
	}

	servers := make([]string, len(cfg.Servers))
	for i, s := range cfg.Servers {
		servers[i] = net.JoinHostPort(s, cfg.Port)
	}

	return &StubResolver{
		client:  new(dns.Client),
		servers: servers,
	}, nil
}

// ResolveA issues a single A-query, trying each configured nameserver in
// turn until one answers, bounded overall by deadline.
func (r *StubResolver) ResolveA(domain string, deadline time.Time) ([]Answer, error) {
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(domain), dns.TypeA)
	m.RecursionDesired = true

	var lastErr error
	for _, server := range r.servers {
		resp, _, err := r.client.ExchangeContext(ctx, m, server)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Rcode != dns.RcodeSuccess {
			lastErr = fmt.Errorf("%s: %s", server, dns.RcodeToString[resp.Rcode])
			continue
		}

		var answers []Answer
		for _, rr := range resp.Answer {
			a, ok := rr.(*dns.A)
			if !ok {
				continue
			}
			answers = append(answers, Answer{
				IP:  a.A,
				TTL: time.Duration(a.Hdr.Ttl) * time.Second,
			})
		}
		return answers, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no nameservers reachable for %s", domain)
	}
	return nil, errors.Wrap(lastErr, errors.KindUnavailable, "dns query failed")
}
