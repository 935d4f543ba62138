// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package registry

import (
	"net"
	"strings"
	"testing"
	"time"

	"grimm.is/alluviumd/internal/clock"
	"grimm.is/alluviumd/internal/dnsresolver"
	"grimm.is/alluviumd/internal/ipsetbackend"
)

func TestIpSetCreateAndReload(t *testing.T) {
	resolver := dnsresolver.NewFake()
	resolver.Set("example.com", dnsresolver.Answer{IP: net.ParseIP("1.2.3.4"), TTL: 300 * time.Second})
	backend := ipsetbackend.NewFake()
	clk := clock.NewMockClock(time.Unix(1_700_000_000, 0))

	set, err := NewIpSet("A", []string{"example.com"}, resolver, backend, clk, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.Dirty() {
		t.Error("expected set to be clean after a successful reload")
	}

	members := backend.Members("A")
	if len(members) != 1 || members[0] != "1.2.3.4" {
		t.Fatalf("expected live set to contain 1.2.3.4, got %v", members)
	}
	if _, exists := backend.Sets["A$"]; exists {
		t.Error("scratch set should not survive a successful reload")
	}
}

func TestIpSetMultipleAddressesUnion(t *testing.T) {
	resolver := dnsresolver.NewFake()
	resolver.Set("a.example", dnsresolver.Answer{IP: net.ParseIP("1.1.1.1"), TTL: 60 * time.Second})
	resolver.Set("b.example",
		dnsresolver.Answer{IP: net.ParseIP("2.2.2.2"), TTL: 60 * time.Second},
		dnsresolver.Answer{IP: net.ParseIP("3.3.3.3"), TTL: 60 * time.Second},
	)
	backend := ipsetbackend.NewFake()
	clk := clock.NewMockClock(time.Unix(1_700_000_000, 0))

	_, err := NewIpSet("A", []string{"a.example", "b.example"}, resolver, backend, clk, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	members := backend.Members("A")
	want := []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"}
	if strings.Join(members, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, members)
	}
}

func TestIpSetNameValidation(t *testing.T) {
	resolver := dnsresolver.NewFake()
	backend := ipsetbackend.NewFake()
	clk := clock.NewMockClock(time.Unix(0, 0))

	longName := strings.Repeat("a", 31)
	if _, err := NewIpSet(longName, nil, resolver, backend, clk, nil, nil); err == nil {
		t.Error("expected 31-byte set name to be rejected")
	}

	okName := strings.Repeat("a", 30)
	if _, err := NewIpSet(okName, nil, resolver, backend, clk, nil, nil); err != nil {
		t.Errorf("expected 30-byte set name to be accepted, got %v", err)
	}
}

func TestIpSetEmptyUpdateClearsBackend(t *testing.T) {
	resolver := dnsresolver.NewFake()
	resolver.Set("example.com", dnsresolver.Answer{IP: net.ParseIP("1.2.3.4"), TTL: 60 * time.Second})
	backend := ipsetbackend.NewFake()
	clk := clock.NewMockClock(time.Unix(0, 0))

	set, err := NewIpSet("A", []string{"example.com"}, resolver, backend, clk, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := set.Update(nil); err != nil {
		t.Fatalf("unexpected error on empty update: %v", err)
	}
	if members := backend.Members("A"); len(members) != 0 {
		t.Errorf("expected empty live set, got %v", members)
	}
}

func TestIpSetBackendFailureSurfacesFromConstruction(t *testing.T) {
	resolver := dnsresolver.NewFake()
	resolver.Set("example.com", dnsresolver.Answer{IP: net.ParseIP("1.2.3.4"), TTL: 60 * time.Second})
	backend := ipsetbackend.NewFake()
	backend.FailOn = "swap"
	clk := clock.NewMockClock(time.Unix(0, 0))

	if _, err := NewIpSet("A", []string{"example.com"}, resolver, backend, clk, nil, nil); err == nil {
		t.Fatal("expected construction to surface the backend failure")
	}
}

func TestIpSetBadDomainLeavesExistingSetUnchanged(t *testing.T) {
	resolver := dnsresolver.NewFake()
	resolver.Set("good.example", dnsresolver.Answer{IP: net.ParseIP("1.2.3.4"), TTL: 60 * time.Second})
	backend := ipsetbackend.NewFake()
	clk := clock.NewMockClock(time.Unix(0, 0))

	set, err := NewIpSet("A", []string{"good.example"}, resolver, backend, clk, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := strings.Repeat("x", 64) + ".example.com"
	if err := set.Update([]string{bad}); err == nil {
		t.Fatal("expected update with an unencodable domain to fail")
	}
	if len(set.Addresses()) != 1 || set.Addresses()[0].Name() != "good.example" {
		t.Error("expected existing addresses to survive a failed update")
	}
}
