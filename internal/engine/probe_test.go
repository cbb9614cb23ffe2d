// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateString(t *testing.T) {
	assert.Equal(t, "INITIATED", StateInitiated.String())
	assert.Equal(t, "ESTABLISHED", StateEstablished.String())
	assert.Equal(t, "SENT_CONNECT", StateSentConnect.String())
	assert.Equal(t, "RECV_CODE", StateRecvCode.String())
	assert.Equal(t, "SAME_BACK", StateSameBack.String())
	assert.Equal(t, "DIFF_BACK", StateDiffBack.String())
	assert.Equal(t, "SENT_TOKEN", StateSentToken.String())
	assert.Equal(t, "RECV_TOKEN", StateRecvToken.String())
	assert.Equal(t, "DISCOVERED", StateDiscovered.String())
}

func TestStateStringUnknown(t *testing.T) {
	assert.Equal(t, "UNKNOWN", State(99).String())
}

func TestStateOrdering(t *testing.T) {
	assert.True(t, StateEstablished > StateInitiated)
	assert.True(t, StateDiscovered > StateEstablished)
}
