// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package domainnorm normalizes operator-supplied domain names to ASCII and
// validates kernel set names, the "configuration intake" component of the
// resolution engine.
package domainnorm

import (
	"strings"

	"golang.org/x/net/idna"

	"grimm.is/alluviumd/internal/errors"
)

// MaxSetNameBytes is the operator-facing set name cap. The kernel caps a set
// name at 32 bytes; the engine keeps operator names to 30 so that a name plus
// the one-byte "$" scratch-set suffix used during an atomic reload stays
// within that cap.
const MaxSetNameBytes = 30

// idnaProfile performs the IDNA2008 ASCII-compatible-encoding conversion a
// DNS stub resolver needs to hand a query to the wire: Unicode labels become
// their Punycode form, and labels that fail IDNA validation, the bidi rule,
// or the DNS length limits are rejected.
var idnaProfile = idna.New(
	idna.MapForLookup(),
	idna.BidiRule(),
	idna.Transitional(false),
	idna.ValidateLabels(true),
	idna.VerifyDNSLength(true),
)

// NormalizeDomain converts raw (which may contain Unicode labels) to its
// ASCII/Punycode form suitable for a DNS query. A domain that cannot be
// IDN-encoded is a fatal construction error for the Address that owns it.
func NormalizeDomain(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.New(errors.KindValidation, "domain name is empty")
	}

	ascii, err := idnaProfile.ToASCII(trimmed)
	if err != nil {
		return "", errors.Wrapf(err, errors.KindValidation, "cannot IDN-normalize domain %q", raw)
	}
	return ascii, nil
}

// ValidateSetName enforces the kernel-set name constraints: non-empty, at
// most MaxSetNameBytes bytes, and no '$' (reserved for the scratch-set
// suffix used by the atomic reload).
func ValidateSetName(name string) error {
	if name == "" {
		return errors.New(errors.KindValidation, "set name is empty")
	}
	if len(name) > MaxSetNameBytes {
		return errors.Errorf(errors.KindValidation, "set name %q exceeds %d bytes", name, MaxSetNameBytes)
	}
	if strings.ContainsRune(name, '$') {
		return errors.Errorf(errors.KindValidation, "set name %q contains '$'", name)
	}
	return nil
}
