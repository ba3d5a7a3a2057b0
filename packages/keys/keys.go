// Package keys derives cache keys from relay request paths.
//
// Push and poll routes share one key space: the routing prefix is stripped
// and whatever follows is the endpoint key, so /push/orders/42 and
// /poll/orders/42 both map to /orders/42. Both sides must go through
// Normalize; a mismatch silently breaks the pairing.
package keys

const (
	// PushPrefix is the route prefix for capturing requests
	PushPrefix = "/push"
	// PollPrefix is the route prefix for draining captured requests
	PollPrefix = "/poll"
	// PrefixLen is the number of leading bytes removed from every path.
	// Both prefixes have the same length.
	PrefixLen = len(PushPrefix)
)

// Normalize removes the routing prefix from path. The remainder keeps its
// leading slash. Paths shorter than the prefix normalize to "".
func Normalize(path string) string {
	if len(path) <= PrefixLen {
		return ""
	}
	return path[PrefixLen:]
}

// Valid reports whether key can address a cache entry.
func Valid(key string) bool {
	return key != ""
}

// FromArg turns a user supplied endpoint name into a key, so "orders" and
// "/orders" address the same entry.
func FromArg(arg string) string {
	if arg == "" || arg[0] == '/' {
		return arg
	}
	return "/" + arg
}
