package protocol

import (
	"bytes"
	"strings"
)

// OOBMarker prefixes every connectionless (out-of-band) datagram,
// distinguishing OOB traffic from in-band netchan packets before any
// per-client state exists.
var OOBMarker = []byte{0xFF, 0xFF, 0xFF, 0xFF}

// IsOutOfBand reports whether data is an out-of-band datagram.
func IsOutOfBand(data []byte) bool {
	return len(data) >= 4 && bytes.Equal(data[:4], OOBMarker)
}

// ParseOOB splits an out-of-band datagram into its command name and the
// raw argument text following it (space separated, quoting handled by
// SplitArgs below).
func ParseOOB(data []byte) (cmd string, rest string) {
	body := strings.TrimRight(string(data[4:]), "\x00")
	body = strings.TrimLeft(body, " ")
	idx := strings.IndexAny(body, " \n")
	if idx < 0 {
		return body, ""
	}
	return body[:idx], strings.TrimLeft(body[idx+1:], " ")
}

// FormatOOB builds an out-of-band reply: the marker followed by text.
func FormatOOB(text string) []byte {
	out := make([]byte, 0, len(OOBMarker)+len(text))
	out = append(out, OOBMarker...)
	out = append(out, text...)
	return out
}

// SplitArgs tokenizes a command's argument text on spaces, honoring
// double-quoted groups (a quoted userinfo blob stays one argument).
func SplitArgs(s string) []string {
	var args []string
	var cur strings.Builder
	inQuotes := false
	hasTok := false
	flush := func() {
		if hasTok {
			args = append(args, cur.String())
			cur.Reset()
			hasTok = false
		}
	}
	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			hasTok = true
		case r == ' ' && !inQuotes:
			flush()
		default:
			cur.WriteRune(r)
			hasTok = true
		}
	}
	flush()
	return args
}
