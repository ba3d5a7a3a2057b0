package snapshot

import (
	"time"
	"unicode/utf8"
)

// UnknownIP is reported when the transport cannot supply a peer address
const UnknownIP = "localhost"

// Snapshot is one captured request. It is never modified after Build returns it.
type Snapshot struct {
	HTTPVersion string            `json:"http_version"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers"`
	QueryString string            `json:"query_string"`
	Path        string            `json:"path"`
	Body        string            `json:"body"`
	Time        int64             `json:"time"` // milliseconds since the Unix epoch
	IP          string            `json:"ip"`
}

// CapturedAt returns the capture timestamp as a time.Time
func (s Snapshot) CapturedAt() time.Time {
	return time.UnixMilli(s.Time)
}

// Header returns the value of the named header. Names are stored lower-cased.
func (s Snapshot) Header(name string) (string, bool) {
	v, ok := s.Headers[lowerASCII(name)]
	return v, ok
}

// DecodeBody converts a payload to a string. An empty payload and a payload
// that is not valid UTF-8 both yield "", the bool reports which one happened.
func DecodeBody(body []byte) (string, bool) {
	if len(body) == 0 {
		return "", true
	}
	if !utf8.Valid(body) {
		return "", false
	}
	return string(body), true
}

// MillisSinceEpoch converts t to the wire timestamp format
func MillisSinceEpoch(t time.Time) int64 {
	return t.UnixMilli()
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
