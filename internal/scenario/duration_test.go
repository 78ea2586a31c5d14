package scenario

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseDurationAllUnits(t *testing.T) {
	got, err := ParseDuration("1d2h3m4s")
	if err != nil {
		t.Fatalf("ParseDuration() error = %v", err)
	}
	want := 24*time.Hour + 2*time.Hour + 3*time.Minute + 4*time.Second
	if got != want {
		t.Fatalf("ParseDuration() = %v, want %v", got, want)
	}
}

func TestParseDurationSubsetOfUnits(t *testing.T) {
	cases := map[string]time.Duration{
		"30s": 30 * time.Second,
		"2m":  2 * time.Minute,
		"1h":  time.Hour,
		"2d":  48 * time.Hour,
		"1m30s": time.Minute + 30*time.Second,
	}
	for in, want := range cases {
		got, err := ParseDuration(in)
		if err != nil {
			t.Fatalf("ParseDuration(%q) error = %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseDuration(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseDurationRejectsEmptyAndGarbage(t *testing.T) {
	for _, in := range []string{"", "garbage", "30x", "-5s"} {
		if _, err := ParseDuration(in); err == nil {
			t.Fatalf("ParseDuration(%q) expected error, got nil", in)
		}
	}
}

func TestDurationJSONRoundTrip(t *testing.T) {
	type wrapper struct {
		D Duration `json:"d"`
	}
	raw := []byte(`{"d":"1h30m"}`)
	var w wrapper
	if err := json.Unmarshal(raw, &w); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if time.Duration(w.D) != 90*time.Minute {
		t.Fatalf("D = %v, want 90m", time.Duration(w.D))
	}

	out, err := json.Marshal(w)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(out) != `{"d":"1h30m0s"}` {
		t.Fatalf("Marshal() = %s", out)
	}
}
