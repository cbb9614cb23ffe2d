// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildConnectRequest(t *testing.T) {
	got := buildConnectRequest("203.0.113.9:1234")
	assert.Equal(t, "CONNECT 203.0.113.9:1234 HTTP/1.0\r\n\r\n", string(got))
}

func TestParseStatusLineOK(t *testing.T) {
	code, ok := parseStatusLine("HTTP/1.0 200 Connection established")
	assert.True(t, ok)
	assert.Equal(t, 200, code)
}

func TestParseStatusLineHTTP11(t *testing.T) {
	code, ok := parseStatusLine("HTTP/1.1 403 Forbidden")
	assert.True(t, ok)
	assert.Equal(t, 403, code)
}

func TestParseStatusLineBadProtocol(t *testing.T) {
	_, ok := parseStatusLine("FTP/1.0 200 OK")
	assert.False(t, ok)
}

func TestParseStatusLineNonNumericCode(t *testing.T) {
	_, ok := parseStatusLine("HTTP/1.0 OK Connection")
	assert.False(t, ok)
}

func TestParseStatusLineWrongFieldCount(t *testing.T) {
	_, ok := parseStatusLine("HTTP/1.0 200")
	assert.False(t, ok)
}
