package deltalog

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Table property keys understood by log maintenance.
const (
	PropLogRetention     = "delta.logRetentionDuration"
	PropDeletedRetention = "delta.deletedFileRetentionDuration"

	DefaultLogRetention     = 30 * 24 * time.Hour
	DefaultDeletedRetention = 7 * 24 * time.Hour
)

var intervalUnits = map[string]time.Duration{
	"nanosecond":  time.Nanosecond,
	"microsecond": time.Microsecond,
	"millisecond": time.Millisecond,
	"second":      time.Second,
	"minute":      time.Minute,
	"hour":        time.Hour,
	"day":         24 * time.Hour,
	"week":        7 * 24 * time.Hour,
}

// ParseInterval parses durations in the `interval <n> <unit>` form table
// properties use, falling back to Go duration syntax.
func ParseInterval(s string) (time.Duration, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	if len(fields) == 3 && fields[0] == "interval" {
		n, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid interval count %q: %w", fields[1], err)
		}
		unit, ok := intervalUnits[strings.TrimSuffix(fields[2], "s")]
		if !ok {
			return 0, fmt.Errorf("invalid interval unit %q", fields[2])
		}
		return time.Duration(n) * unit, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", s, err)
	}
	return d, nil
}

// RetentionProperty resolves a duration table property with a default for
// missing or unparseable values.
func (s *Snapshot) RetentionProperty(key string, def time.Duration) time.Duration {
	v := s.Property(key, "")
	if v == "" {
		return def
	}
	d, err := ParseInterval(v)
	if err != nil {
		logger.Warn().Str("property", key).Str("value", v).Msg("ignoring invalid duration property")
		return def
	}
	return d
}
