// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package dnsresolver defines the pluggable DNS stub-resolver contract
// and a production implementation over github.com/miekg/dns.
package dnsresolver

import (
	"net"
	"time"
)

// Answer is one A record: an IPv4 address and its record TTL.
type Answer struct {
	IP  net.IP
	TTL time.Duration
}

// Resolver issues a single A-query for domain, bounded by deadline. An empty,
// non-error result is NODATA and is distinct from an error.
type Resolver interface {
	ResolveA(domain string, deadline time.Time) ([]Answer, error)
}
