package store

import (
	"strconv"
	"strings"
)

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}

// splitCounterKey splits "type:identifier:windowStart" back into its parts.
// Identifiers may themselves contain colons (IPv6 addresses), so the window
// start is taken from the last segment.
func splitCounterKey(key string) (ruleType, identifier string, ok bool) {
	i := strings.Index(key, ":")
	j := strings.LastIndex(key, ":")
	if i < 0 || j <= i {
		return "", "", false
	}
	return key[:i], key[i+1 : j], true
}
