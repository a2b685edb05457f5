package util

import (
	"strconv"
	"strings"
	"time"
)

// unixMillisCutoff separates unix seconds from milliseconds; seconds past it would be after year 2286.
const unixMillisCutoff = 9_999_999_999

// ParseTime accepts RFC3339 (with or without fractional seconds) and unix
// seconds or milliseconds. Results are UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return FromUnix(ts), true
	}
	return time.Time{}, false
}

// FromUnix interprets n as seconds, or as milliseconds when too large to be seconds.
func FromUnix(n int64) time.Time {
	if n > unixMillisCutoff {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
