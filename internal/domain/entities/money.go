package entities

import (
	"fmt"
	"strings"
)

// MicrosPerDollar is the internal money scale. All arithmetic on prices and
// budgets happens in integer micro-units; strings like "$0.01" only appear at
// the API surface.
const MicrosPerDollar int64 = 1_000_000

// RoundMode controls which way sub-micro remainders go when parsing.
type RoundMode int

const (
	// RoundDown truncates toward zero. Used for caller budgets so the gateway
	// never charges more than the caller allowed.
	RoundDown RoundMode = iota
	// RoundUp rounds away from zero. Used for gateway-side pricing so markup
	// never undercuts the provider cost.
	RoundUp
)

// ParseUSD converts a human price string ("$0.01", "0.25") into micro-units.
// Negative amounts are rejected.
func ParseUSD(s string, mode RoundMode) (int64, error) {
	raw := strings.TrimSpace(s)
	raw = strings.TrimPrefix(raw, "$")
	raw = strings.TrimSuffix(strings.TrimSpace(raw), " USD")
	if raw == "" {
		return 0, fmt.Errorf("empty amount %q", s)
	}
	if strings.HasPrefix(raw, "-") {
		return 0, fmt.Errorf("negative amount %q", s)
	}

	whole, frac := raw, ""
	if i := strings.IndexByte(raw, '.'); i >= 0 {
		whole, frac = raw[:i], raw[i+1:]
	}
	if whole == "" {
		whole = "0"
	}

	var micros int64
	for _, r := range whole {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("invalid amount %q", s)
		}
		micros = micros*10 + int64(r-'0')
	}
	micros *= MicrosPerDollar

	scale := MicrosPerDollar / 10
	var remainder bool
	for _, r := range frac {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("invalid amount %q", s)
		}
		if scale == 0 {
			if r != '0' {
				remainder = true
			}
			continue
		}
		micros += int64(r-'0') * scale
		scale /= 10
	}
	if remainder && mode == RoundUp {
		micros++
	}
	return micros, nil
}

// FormatUSD renders micro-units as a dollar string with at least two and at
// most six decimal places ("$0.01", "$0.005").
func FormatUSD(micros int64) string {
	neg := ""
	if micros < 0 {
		neg = "-"
		micros = -micros
	}
	whole := micros / MicrosPerDollar
	frac := micros % MicrosPerDollar
	dec := fmt.Sprintf("%06d", frac)
	for len(dec) > 2 && dec[len(dec)-1] == '0' {
		dec = dec[:len(dec)-1]
	}
	return fmt.Sprintf("%s$%d.%s", neg, whole, dec)
}

// RoundUpToMicros rounds micros up to the nearest multiple of step.
func RoundUpToMicros(micros, step int64) int64 {
	if step <= 0 {
		return micros
	}
	if rem := micros % step; rem != 0 {
		return micros + step - rem
	}
	return micros
}
