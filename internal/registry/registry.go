// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package registry

import (
	"sort"
	"sync"
	"time"

	"grimm.is/alluviumd/internal/clock"
	"grimm.is/alluviumd/internal/dnsresolver"
	"grimm.is/alluviumd/internal/ipsetbackend"
	"grimm.is/alluviumd/internal/logging"
	"grimm.is/alluviumd/internal/metrics"
)

// Registry holds every live IpSet, keyed by name. Registry
// exclusively owns its IpSets.
type Registry struct {
	mu   sync.Mutex
	sets map[string]*IpSet

	resolver dnsresolver.Resolver
	backend  ipsetbackend.Backend
	clk      clock.Clock
	logger   *logging.Logger
	mx       *metrics.Metrics
}

// New constructs an empty Registry. resolver, backend, clk, and logger are
// threaded into every IpSet/Address the registry creates. mx may be nil.
func New(resolver dnsresolver.Resolver, backend ipsetbackend.Backend, clk clock.Clock, logger *logging.Logger, mx *metrics.Metrics) *Registry {
	return &Registry{
		sets:     make(map[string]*IpSet),
		resolver: resolver,
		backend:  backend,
		clk:      clk,
		logger:   logger,
		mx:       mx,
	}
}

// Update applies an `update <name> <domains...>` request: if name already
// exists its Update is called in place, otherwise a new IpSet is
// constructed. Construction/update errors (e.g. a domain that fails IDN
// normalization) are returned without mutating the registry.
func (r *Registry) Update(name string, domains []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sets[name]; ok {
		return existing.Update(domains)
	}

	set, err := NewIpSet(name, domains, r.resolver, r.backend, r.clk, r.logger, r.mx)
	if err != nil {
		return err
	}
	r.sets[name] = set
	return nil
}

// Drop removes name from the registry. It reports whether name was present.
func (r *Registry) Drop(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sets[name]; !ok {
		return false
	}
	delete(r.sets, name)
	return true
}

// Get returns the named IpSet, if present.
func (r *Registry) Get(name string) (*IpSet, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sets[name]
	return s, ok
}

// All returns every IpSet in the registry, sorted by name for deterministic
// iteration (snapshot dumps, forced reload/renew sweeps).
func (r *Registry) All() []*IpSet {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*IpSet, 0, len(r.sets))
	for _, s := range r.sets {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// ReloadDirtySets calls ReloadIfNeeded on every set, batching all dirty
// flips from one tick into at most one reload per set, then publishes the
// post-sweep count of still-dirty sets (backend failures leave a set dirty).
func (r *Registry) ReloadDirtySets() {
	all := r.All()
	for _, s := range all {
		_ = s.ReloadIfNeeded()
	}
	r.publishDirtyCount(all)
}

func (r *Registry) publishDirtyCount(sets []*IpSet) {
	n := 0
	for _, s := range sets {
		if s.Dirty() {
			n++
		}
	}
	r.mx.SetDirtySets(n)
}

// ForceReloadAll invokes Reload on every set regardless of its dirty flag.
func (r *Registry) ForceReloadAll() {
	all := r.All()
	for _, s := range all {
		if err := s.Reload(); err != nil && r.logger != nil {
			r.logger.Error("forced reload failed", "set", s.Name(), "error", err)
		}
	}
	r.publishDirtyCount(all)
}

// ForceRenewAll calls renew() on every owned Address then force-reloads
// every set.
func (r *Registry) ForceRenewAll() {
	for _, s := range r.All() {
		for _, addr := range s.Addresses() {
			addr.renew()
		}
	}
	r.ForceReloadAll()
}

// SnapshotEntry is one (set, domain, IPs) row of a HUP snapshot.
type SnapshotEntry struct {
	Set     string
	Domain  string
	IPs     []string
	Expires string
}

// Snapshot renders a human-readable dump of every set, domain, and cached
// IPs for the SIGHUP handler.
func (r *Registry) Snapshot(now time.Time) []SnapshotEntry {
	var out []SnapshotEntry
	for _, s := range r.All() {
		for _, addr := range s.Addresses() {
			ips := make([]string, 0, len(addr.IPs()))
			for _, ip := range addr.IPs() {
				ips = append(ips, ip.String())
			}
			out = append(out, SnapshotEntry{
				Set:     s.Name(),
				Domain:  addr.Name(),
				IPs:     ips,
				Expires: addr.TimeDiff(now).Round(time.Second).String(),
			})
		}
	}
	return out
}
