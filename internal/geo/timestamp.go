package geo

import (
	"time"
	_ "time/tzdata"
)

// TimestampLayout is ISO-8601 with a colon-less numeric offset, e.g.
// 2025-09-01T10:22:13+0200.
const TimestampLayout = "2006-01-02T15:04:05-0700"

// LocalTimestamp formats now in the named IANA zone and returns the
// timestamp with the zone name actually used. Empty or unknown names fall
// back to UTC.
func LocalTimestamp(now time.Time, tzName string) (string, string) {
	loc := time.UTC
	if tzName != "" && tzName != "Local" {
		if l, err := time.LoadLocation(tzName); err == nil {
			loc = l
		}
	}
	return now.In(loc).Format(TimestampLayout), loc.String()
}

// ParseTimestamp parses a value produced by LocalTimestamp. RFC 3339 input is
// accepted as well.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(TimestampLayout, s)
	if err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
