package dsl

import (
	"time"
)

// ParseTimeframe converts a timeframe token ("1m", "5m", "1h", "1d", "1w",
// "2w", ...) into its bar duration. Unparseable tokens fail with an
// UNSUPPORTED_TIMEFRAME error.
func ParseTimeframe(token string) (time.Duration, error) {
	if len(token) < 2 {
		return 0, Errorf(KindUnsupportedTimeframe, "timeframe %q is not a valid duration token", token)
	}
	unit := token[len(token)-1]
	num := token[:len(token)-1]
	n := 0
	for _, r := range num {
		if r < '0' || r > '9' {
			return 0, Errorf(KindUnsupportedTimeframe, "timeframe %q is not a valid duration token", token)
		}
		n = n*10 + int(r-'0')
	}
	if n <= 0 {
		return 0, Errorf(KindUnsupportedTimeframe, "timeframe %q has a non-positive length", token)
	}
	switch unit {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, Errorf(KindUnsupportedTimeframe, "timeframe %q has unknown unit %q", token, string(unit))
	}
}

// IsTimeframe reports whether token parses as a timeframe.
func IsTimeframe(token string) bool {
	_, err := ParseTimeframe(token)
	return err == nil
}

// IsWeekly reports whether token denotes a weekly (or coalesced N-week)
// timeframe, which the candle layer synthesizes from daily bars when not
// natively available.
func IsWeekly(token string) bool {
	return len(token) >= 2 && token[len(token)-1] == 'w' && IsTimeframe(token)
}

// WeeklySpan returns N for an "Nw" token, or 0 when the token is not weekly.
func WeeklySpan(token string) int {
	if !IsWeekly(token) {
		return 0
	}
	n := 0
	for _, r := range token[:len(token)-1] {
		n = n*10 + int(r-'0')
	}
	return n
}

// Timeframes collects the distinct timeframe tokens pinned on a rule's
// indicator calls, in first-appearance order. Callers still add the base
// timeframe themselves; an unpinned rule references no timeframes at all.
func Timeframes(root Node) []string {
	seen := make(map[string]bool)
	var out []string
	Walk(root, func(n Node) bool {
		c, ok := n.(*Call)
		if !ok {
			return true
		}
		if shape, err := ShapeCall(c); err == nil && shape.TF != "" {
			if !seen[shape.TF] {
				seen[shape.TF] = true
				out = append(out, shape.TF)
			}
			return true
		}
		for _, a := range c.Args {
			if id, ok := a.(*Ident); ok && IsTimeframe(id.Name) && !seen[id.Name] {
				seen[id.Name] = true
				out = append(out, id.Name)
			}
		}
		return true
	})
	return out
}
