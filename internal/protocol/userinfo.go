package protocol

import "strings"

// MaxInfoString bounds the userinfo blob. Every writer that mutates a
// userinfo string must check against this before committing the change;
// userinfo is a plain bounded text buffer, never a growable one.
const MaxInfoString = 1024

// InfoValueForKey returns the value for key in a backslash-delimited
// "\key\value\key2\value2" info string, or "" if key is absent.
func InfoValueForKey(info, key string) string {
	if info == "" || key == "" {
		return ""
	}
	parts := strings.Split(info, "\\")
	// parts[0] is empty (info strings start with a leading backslash);
	// walk key/value pairs from index 1.
	for i := 1; i+1 < len(parts); i += 2 {
		if parts[i] == key {
			return parts[i+1]
		}
	}
	return ""
}

// InfoSetValueForKey returns a copy of info with key set to value,
// replacing any existing entry for key. It does not enforce MaxInfoString;
// callers check the result's length themselves so they can choose how to
// react to an overflow (reject vs. drop, per call site).
func InfoSetValueForKey(info, key, value string) string {
	if strings.ContainsAny(key, "\\;\"") || strings.ContainsAny(value, "\\;\"") {
		// Malformed key/value would corrupt the delimiter scheme; ignore
		// the write rather than hand back a string that no longer parses.
		return info
	}

	parts := strings.Split(info, "\\")
	var b strings.Builder
	found := false
	for i := 1; i+1 < len(parts); i += 2 {
		k, v := parts[i], parts[i+1]
		if k == key {
			v = value
			found = true
		}
		if k == "" {
			continue
		}
		b.WriteByte('\\')
		b.WriteString(k)
		b.WriteByte('\\')
		b.WriteString(v)
	}
	if !found {
		b.WriteByte('\\')
		b.WriteString(key)
		b.WriteByte('\\')
		b.WriteString(value)
	}
	return b.String()
}
