// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import "bytes"

// appendBounded appends data to buf, truncating to BannerReadLimit
// total bytes. Open Question (c): reading more than 128 bytes of
// banner in one read truncates to the first line's budget; trailing
// pipelined data is dropped, which is sufficient for correctness since
// the probe never pipelines.
func appendBounded(buf, data []byte) []byte {
	buf = append(buf, data...)
	if len(buf) > BannerReadLimit {
		buf = buf[:BannerReadLimit]
	}
	return buf
}

// firstLine extracts the first newline-terminated line from buf, with
// a trailing "\r" trimmed. ok is false until a newline has arrived or
// the buffer has filled to BannerReadLimit without one (treated as a
// complete, if truncated, line).
func firstLine(buf []byte) (line string, ok bool) {
	if idx := bytes.IndexByte(buf, '\n'); idx >= 0 {
		line = string(bytes.TrimSuffix(buf[:idx], []byte("\r")))
		return line, true
	}
	if len(buf) >= BannerReadLimit {
		return string(buf), true
	}
	return "", false
}
