// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package registry

import (
	"net"

	"grimm.is/alluviumd/internal/clock"
	"grimm.is/alluviumd/internal/dnsresolver"
	"grimm.is/alluviumd/internal/domainnorm"
	"grimm.is/alluviumd/internal/ipsetbackend"
	"grimm.is/alluviumd/internal/logging"
	"grimm.is/alluviumd/internal/metrics"
)

// scratchSuffix names the temporary set used for the atomic two-phase
// replace against the kernel set backend.
const scratchSuffix = "$"

// IpSet binds a kernel set name to the group of Addresses populating it.
type IpSet struct {
	name      string
	addresses []*Address
	dirty     bool

	resolver dnsresolver.Resolver
	backend  ipsetbackend.Backend
	clk      clock.Clock
	logger   *logging.Logger
	mx       *metrics.Metrics
}

// NewIpSet validates name and constructs the set from domains, performing
// the initial synchronous update+reload. mx may be nil.
func NewIpSet(name string, domains []string, resolver dnsresolver.Resolver, backend ipsetbackend.Backend, clk clock.Clock, logger *logging.Logger, mx *metrics.Metrics) (*IpSet, error) {
	if err := domainnorm.ValidateSetName(name); err != nil {
		return nil, err
	}

	s := &IpSet{
		name:     name,
		resolver: resolver,
		backend:  backend,
		clk:      clk,
		logger:   logger,
		mx:       mx,
	}
	if err := s.Update(domains); err != nil {
		return nil, err
	}
	return s, nil
}

// Name returns the set's kernel name.
func (s *IpSet) Name() string {
	return s.name
}

// Addresses returns the set's owned Address entries.
func (s *IpSet) Addresses() []*Address {
	return s.addresses
}

// Dirty reports whether the in-memory IP union has changed since the last
// successful reload.
func (s *IpSet) Dirty() bool {
	return s.dirty
}

// Update destroys all existing Addresses and reconstructs the set from
// domains in input order (duplicates are preserved; the kernel set
// deduplicates IPs), then reloads unconditionally. If any
// domain fails to normalize, the existing Addresses are left untouched and
// the error is returned, so a failed update never leaves the set half
// rebuilt.
func (s *IpSet) Update(domains []string) error {
	next := make([]*Address, 0, len(domains))
	for _, domain := range domains {
		addr, err := NewAddress(domain, s.resolver, s.clk, s.flagUpdated, s.mx)
		if err != nil {
			return err
		}
		next = append(next, addr)
	}

	s.addresses = next
	return s.Reload()
}

// Reload computes the union of all owned Addresses' cached IPs and performs
// the atomic two-phase replace against the backend: populate a scratch set,
// swap it with the live set, destroy the old one. dirty is cleared only if
// all three steps succeed.
func (s *IpSet) Reload() error {
	scratch := s.name + scratchSuffix

	if err := s.backend.CreateEmpty(scratch, ipsetbackend.HashType); err != nil {
		s.dirty = true
		s.mx.ObserveReload(false)
		return err
	}

	seen := make(map[string]bool)
	for _, addr := range s.addresses {
		for _, ip := range addr.IPs() {
			key := ip.String()
			if seen[key] {
				continue
			}
			seen[key] = true
			if err := s.backend.Add(scratch, ip); err != nil {
				s.dirty = true
				s.mx.ObserveReload(false)
				return err
			}
		}
	}

	if err := s.backend.Swap(scratch, s.name); err != nil {
		s.dirty = true
		s.mx.ObserveReload(false)
		return err
	}
	if err := s.backend.Destroy(scratch); err != nil {
		s.dirty = true
		s.mx.ObserveReload(false)
		return err
	}

	s.dirty = false
	s.mx.ObserveReload(true)
	return nil
}

// flagUpdated is the capability an owned Address calls from within renew()
// when its cached IPs changed. It only marks the set dirty; it never
// triggers a reload itself.
func (s *IpSet) flagUpdated() {
	s.dirty = true
}

// ReloadIfNeeded reloads the backend only if dirty, batching every dirty
// flip since the last reload into at most one backend call.
func (s *IpSet) ReloadIfNeeded() error {
	if !s.dirty {
		return nil
	}
	if err := s.Reload(); err != nil {
		if s.logger != nil {
			s.logger.Error("ipset reload failed", "set", s.name, "error", err)
		}
		return err
	}
	return nil
}

// UnionIPs returns the deduplicated union of every owned Address's cached
// IPs, in first-seen order.
func (s *IpSet) UnionIPs() []net.IP {
	seen := make(map[string]bool)
	var out []net.IP
	for _, addr := range s.addresses {
		for _, ip := range addr.IPs() {
			key := ip.String()
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, ip)
		}
	}
	return out
}
