// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"github.com/bassosimone/runtimex"
	"github.com/google/uuid"
)

// newSpanID returns a UUIDv7 uniquely identifying a probe for the
// duration of its lifecycle, independent of its (reusable) file
// descriptor. Attaching this to every event for a probe lets a log
// consumer correlate attempt/established/error/timeout lines for the
// same probe even across a descriptor reuse.
//
// This function panics if the system random number generator fails,
// which should only happen under extraordinary circumstances.
func newSpanID() string {
	return runtimex.PanicOnError1(uuid.NewV7()).String()
}
