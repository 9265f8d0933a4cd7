package engine

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// baselineMinutes is the effort that earns exactly the propagated amount.
const baselineMinutes = 30.0

var durationRe = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s*([a-zA-Z]+)`)

// compoundRe limits Go duration syntax to hours and minutes ("1h30m").
var compoundRe = regexp.MustCompile(`^(\d+(?:\.\d+)?[hm])+$`)

// DurationMultiplier turns a free-text effort estimate into an experience
// multiplier: minutes / 30, or hours * 2. It reads the leading number and
// unit ("30 mins", "2 hours", "1.5h") and also accepts Go duration syntax
// ("1h30m") built from h and m. Anything else, including other units and
// zero or negative amounts, yields 1.
func DurationMultiplier(text string) float64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return 1.0
	}

	if compact := strings.ReplaceAll(text, " ", ""); compoundRe.MatchString(compact) {
		if d, err := time.ParseDuration(compact); err == nil && d > 0 {
			return d.Minutes() / baselineMinutes
		}
	}

	if m := durationRe.FindStringSubmatch(text); m != nil {
		n, err := strconv.ParseFloat(m[1], 64)
		unit := strings.ToLower(m[2])
		if err == nil && n > 0 {
			switch {
			case isMinuteUnit(unit):
				return n / baselineMinutes
			case isHourUnit(unit):
				return n * 2
			}
		}
	}

	return 1.0
}

func isMinuteUnit(u string) bool {
	switch u {
	case "m", "min", "mins", "minute", "minutes":
		return true
	}
	return false
}

func isHourUnit(u string) bool {
	switch u {
	case "h", "hr", "hrs", "hour", "hours":
		return true
	}
	return false
}
