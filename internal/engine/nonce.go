// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"crypto/rand"
)

// printableASCIILow and printableASCIIHigh bound the printable ASCII
// set spec section 4.3 draws nonce bytes from (space through tilde).
const (
	printableASCIILow  = 0x20
	printableASCIIHigh = 0x7e
)

// generateNonce returns NonceSize bytes drawn uniformly with
// replacement from the printable ASCII set, per spec section 4.3.
//
// No ecosystem helper in the retrieved pack generates variable-length
// printable-ASCII tokens (github.com/google/uuid, used elsewhere in
// this engine for span ids, is fixed-format and the wrong length and
// alphabet), so this draws directly from crypto/rand: the "astronomically
// unlikely but must be checked" collision requirement calls for a
// cryptographically strong source, not math/rand.
func generateNonce() (string, error) {
	const span = printableASCIIHigh - printableASCIILow + 1
	// Random bytes at or above limit are discarded so that b%span is
	// uniform over the alphabet.
	const limit = 256 - 256%span
	raw := make([]byte, NonceSize)
	out := make([]byte, 0, NonceSize)
	for len(out) < NonceSize {
		if _, err := rand.Read(raw); err != nil {
			return "", err
		}
		for _, b := range raw {
			if b >= limit || len(out) == NonceSize {
				continue
			}
			out = append(out, printableASCIILow+b%span)
		}
	}
	return string(out), nil
}

// newUniqueNonce regenerates until exists reports no collision, per
// spec section 3: "collisions ... must be retried rather than overwrite."
func newUniqueNonce(exists func(string) bool) (string, error) {
	for {
		nonce, err := generateNonce()
		if err != nil {
			return "", err
		}
		if !exists(nonce) {
			return nonce, nil
		}
	}
}
