// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package registry implements the resolution and synchronization engine:
// Address, IpSet, Registry, and ExpiryQueue.
package registry

import (
	"encoding/binary"
	"net"
	"sort"
	"time"

	"grimm.is/alluviumd/internal/clock"
	"grimm.is/alluviumd/internal/dnsresolver"
	"grimm.is/alluviumd/internal/domainnorm"
	"grimm.is/alluviumd/internal/metrics"
)

// Tuning constants governing cache lifetime and retry cadence.
const (
	queryDeadline  = 2 * time.Second
	transientRetry = 60 * time.Second
	nodataRetry    = 4 * time.Hour
	maxCachedTTL   = 3 * 24 * time.Hour
)

// Address holds the DNS state of one domain: its normalized name, its
// current cached resolution, and the deadline at which it must be
// re-resolved.
type Address struct {
	name     string
	resolver dnsresolver.Resolver
	clk      clock.Clock
	onDirty  func()
	mx       *metrics.Metrics

	ips    []net.IP
	expiry time.Time
}

// NewAddress IDN-normalizes domain (a fatal error for this entry on
// failure), then performs the initial synchronous renew(). onDirty is the
// capability used to flag the owning IpSet without Address holding a
// reference back to it. mx may be nil.
func NewAddress(domain string, resolver dnsresolver.Resolver, clk clock.Clock, onDirty func(), mx *metrics.Metrics) (*Address, error) {
	name, err := domainnorm.NormalizeDomain(domain)
	if err != nil {
		return nil, err
	}

	a := &Address{
		name:     name,
		resolver: resolver,
		clk:      clk,
		onDirty:  onDirty,
		mx:       mx,
	}
	a.renew()
	return a, nil
}

// renew issues a single A-query and updates the cache and expiry deadline.
// It never returns an error: a transport failure preserves the cache and
// retries soon, an empty answer set clears the cache and retries later, and
// a successful answer replaces the cache. Only IDN normalization (handled in
// NewAddress) is a fatal error for an Address.
func (a *Address) renew() {
	now := a.clk.Now()
	deadline := now.Add(queryDeadline)

	answers, err := a.resolver.ResolveA(a.name, deadline)
	a.mx.ObserveResolution(err == nil)
	if err != nil {
		// Transient transport failure: keep cache, retry in 60s, don't flag dirty.
		a.expiry = now.Add(transientRetry)
		return
	}

	if len(answers) == 0 {
		// NODATA: clear the cache and retry in 4 hours. Only flag dirty if
		// that actually changes state.
		if len(a.ips) > 0 {
			a.ips = nil
			a.flagDirty()
		}
		a.expiry = now.Add(nodataRetry)
		return
	}

	minTTL := answers[0].TTL
	ips := make([]net.IP, 0, len(answers))
	for _, ans := range answers {
		if ans.TTL < minTTL {
			minTTL = ans.TTL
		}
		ips = append(ips, ans.IP)
	}
	if minTTL > maxCachedTTL {
		minTTL = maxCachedTTL
	}
	a.expiry = now.Add(minTTL)

	sortIPs(ips)
	deduped := ips[:0]
	for _, ip := range ips {
		if len(deduped) > 0 && ip.Equal(deduped[len(deduped)-1]) {
			continue
		}
		deduped = append(deduped, ip)
	}
	ips = deduped
	if !ipListsEqual(ips, a.ips) {
		a.ips = ips
		a.flagDirty()
	}
}

func (a *Address) flagDirty() {
	if a.onDirty != nil {
		a.onDirty()
	}
}

// IPs returns the current sorted, deduplicated-within-a-resolution list of
// cached IPv4 addresses.
func (a *Address) IPs() []net.IP {
	return a.ips
}

// Name returns the normalized domain name.
func (a *Address) Name() string {
	return a.name
}

// TimeDiff returns the signed number of seconds until expiry (negative if
// already expired).
func (a *Address) TimeDiff(now time.Time) time.Duration {
	return a.expiry.Sub(now)
}

// IsExpired reports whether the Address is due for renewal.
func (a *Address) IsExpired(now time.Time) bool {
	return a.TimeDiff(now) <= 0
}

// GreaterTTL returns true iff a expires strictly later than b. ExpiryQueue
// does not call it; its heap compares expiry deadlines directly.
func GreaterTTL(a, b *Address) bool {
	return a.expiry.After(b.expiry)
}

// sortIPs sorts IPv4 addresses ascending by their big-endian 32-bit value.
func sortIPs(ips []net.IP) {
	sort.Slice(ips, func(i, j int) bool {
		return ipUint32(ips[i]) < ipUint32(ips[j])
	})
}

func ipUint32(ip net.IP) uint32 {
	v4 := ip.To4()
	if v4 == nil {
		return 0
	}
	return binary.BigEndian.Uint32(v4)
}

func ipListsEqual(a, b []net.IP) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
