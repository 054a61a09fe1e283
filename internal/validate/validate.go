package validate

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	reQ     = regexp.MustCompile(`^[\p{L}\p{N} _'.\-]{1,50}$`)
	reStore = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,31}$`)
	reType  = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,64}$`)
)

// Qty parses a cashier-entered quantity, dropping any fraction. Non-numeric
// or non-positive input yields 1; values above max, however large, are
// clamped and reported via clamped.
func Qty(s string, max int) (n int, clamped bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 1, false
	}
	d = d.Truncate(0)
	if d.LessThan(decimal.NewFromInt(1)) {
		return 1, false
	}
	if d.GreaterThan(decimal.NewFromInt(int64(max))) {
		return max, true
	}
	return int(d.IntPart()), false
}

// Price parses a unit price, clamps it to [0, max] and rounds to cents.
func Price(s string, max float64) float64 {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || d.IsNegative() {
		return 0
	}
	return ClampMoney(d.InexactFloat64(), 0, max)
}

// ClampMoney clamps v to [lo, hi] and rounds half away from zero to 2 places.
func ClampMoney(v, lo, hi float64) float64 {
	d := decimal.NewFromFloat(v)
	if d.LessThan(decimal.NewFromFloat(lo)) {
		d = decimal.NewFromFloat(lo)
	}
	if d.GreaterThan(decimal.NewFromFloat(hi)) {
		d = decimal.NewFromFloat(hi)
	}
	return d.Round(2).InexactFloat64()
}

// Q validates a product search query: trims, enforces allowed characters and max length
func Q(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if r := []rune(s); len(r) > 50 {
		s = string(r[:50])
	}
	return s, reQ.MatchString(s)
}

// Store validates an offline store name.
func Store(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, reStore.MatchString(s)
}

// SyncType validates the X-Sync-Type tag of a generic sync entry.
func SyncType(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, reType.MatchString(s)
}

// Index parses a cart line index from a route param.
func Index(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
