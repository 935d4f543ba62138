// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package ipsetbackend defines the pluggable kernel set-backend contract
// and a production implementation that drives the `ipset`
// command-line tool, the same "pipe a scripted batch into a privileged CLI
// helper" idiom this codebase's internal/firewall package uses for `nft`.
package ipsetbackend

import "net"

// Backend is the atomic kernel-set replacement contract. A reload is always
// composed from these four primitives: create a scratch set, populate it,
// swap it with the live set, then destroy the (now-scratch) old one.
type Backend interface {
	CreateEmpty(name, hashType string) error
	Add(name string, ip net.IP) error
	Swap(a, b string) error
	Destroy(name string) error
}

// HashType is the ipset hash family used for all sets this daemon creates.
// "hash:ip" stores individual IPv4 addresses.
const HashType = "hash:ip"
