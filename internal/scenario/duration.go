package scenario

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// durationPattern matches the "\d+d \d+h \d+m \d+s" grammar: any subset
// of day/hour/minute/second components, each optional but at least one
// required, in that fixed order. Unlike time.ParseDuration this accepts
// a bare day unit, which the wall-clock scenario durations need.
var durationPattern = regexp.MustCompile(`^(?:(\d+)d)?(?:(\d+)h)?(?:(\d+)m)?(?:(\d+)s)?$`)

// ParseDuration parses a duration string in the "\d+d \d+h \d+m \d+s"
// grammar and sums its components into a time.Duration. An empty string
// or one with no matching unit is an error.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("scenario: empty duration")
	}

	m := durationPattern.FindStringSubmatch(s)
	if m == nil || (m[1] == "" && m[2] == "" && m[3] == "" && m[4] == "") {
		return 0, fmt.Errorf("scenario: invalid duration %q, want form like \"1h30m\" or \"2d\"", s)
	}

	var total time.Duration
	units := []struct {
		raw  string
		unit time.Duration
	}{
		{m[1], 24 * time.Hour},
		{m[2], time.Hour},
		{m[3], time.Minute},
		{m[4], time.Second},
	}
	for _, u := range units {
		if u.raw == "" {
			continue
		}
		n, err := strconv.ParseInt(u.raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("scenario: invalid duration %q: %w", s, err)
		}
		total += time.Duration(n) * u.unit
	}
	return total, nil
}

// Duration is a time.Duration that (un)marshals from the "\d+d \d+h \d+m
// \d+s" string grammar in JSON options payloads.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// String returns the duration's canonical Go string form.
func (d Duration) String() string {
	return time.Duration(d).String()
}
