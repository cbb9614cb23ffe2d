// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// buildConnectRequest renders the CONNECT line spec section 4.3 sends
// on the INITIATED → SENT_CONNECT transition.
func buildConnectRequest(advertise string) []byte {
	return []byte(fmt.Sprintf("CONNECT %s HTTP/1.0\r\n\r\n", advertise))
}

// parseStatusLine implements spec section 4.3's HTTP response parsing:
// "split the first line on single spaces into three fields; require the
// protocol to be literally HTTP/1.0 or HTTP/1.1; require the second
// field to be a decimal integer; retain that integer as http_code.
// Anything else → discord failure."
func parseStatusLine(line string) (code int, ok bool) {
	fields := strings.SplitN(line, " ", 3)
	if len(fields) != 3 {
		return 0, false
	}
	if fields[0] != "HTTP/1.0" && fields[0] != "HTTP/1.1" {
		return 0, false
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
