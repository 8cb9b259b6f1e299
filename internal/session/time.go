package session

import (
	"fmt"
	"time"
)

// timestampLayouts covers the formats devices have been seen sending.
// RFC 3339 with or without fractional seconds is the documented contract;
// the rest is leniency for older firmware.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses a device-supplied timestamp string.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
