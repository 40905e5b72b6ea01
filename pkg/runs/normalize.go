package runs

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Magnitude is one entry of the large-number suffix table.
type Magnitude struct {
	Suffix string
	Value  float64
}

// magnitudes is ordered ascending. Suffixes are case sensitive: q and Q are different powers.
var magnitudes = []Magnitude{
	{"K", 1e3},
	{"M", 1e6},
	{"B", 1e9},
	{"T", 1e12},
	{"q", 1e15},
	{"Q", 1e18},
	{"s", 1e21},
	{"S", 1e24},
	{"O", 1e27},
	{"N", 1e30},
	{"D", 1e33},
	{"aa", 1e36},
	{"ab", 1e39},
	{"ac", 1e42},
	{"ad", 1e45},
}

var suffixMultipliers = func() map[string]float64 {
	m := make(map[string]float64, len(magnitudes))
	for _, mg := range magnitudes {
		m[mg.Suffix] = mg.Value
	}
	return m
}()

// Magnitudes returns a copy of the suffix table, ascending.
func Magnitudes() []Magnitude {
	out := make([]Magnitude, len(magnitudes))
	copy(out, magnitudes)
	return out
}

var (
	reLargeNumber = regexp.MustCompile(`^\s*\$?(\d+(?:\.\d+)?)\s*([KMBTqQsSOND]|aa|ab|ac|ad)?\s*$`)
	reInteger     = regexp.MustCompile(`^\s*\d+\s*$`)
	reIntegerPlus = regexp.MustCompile(`^\s*(\d+)([+])?\s*$`)
	reTimespan    = regexp.MustCompile(`^\s*((\d)+[dhms]?\s?)+$`)
	reTimeSegment = regexp.MustCompile(`(\d+)([dhms])?`)
	reMultiplier  = regexp.MustCompile(`^\s*[x]([\d.])+\s*$`)
)

// ValidateLargeNumber reports whether raw is a decimal number with an optional
// leading $ and an optional magnitude suffix, e.g. "12.5M" or "$340.21q".
func ValidateLargeNumber(raw string) bool {
	return reLargeNumber.MatchString(raw)
}

// ParseLargeNumber converts an abbreviated number to its value. Thousands
// separators are dropped before matching. Returns NaN when raw does not match.
func ParseLargeNumber(raw string) float64 {
	m := reLargeNumber.FindStringSubmatch(strings.ReplaceAll(raw, ",", ""))
	if m == nil {
		return math.NaN()
	}
	num, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return math.NaN()
	}
	mult, ok := suffixMultipliers[m[2]]
	if !ok {
		mult = 1
	}
	return num * mult
}

// ValidateInteger accepts digits padded with optional whitespace.
func ValidateInteger(raw string) bool {
	return reInteger.MatchString(raw)
}

// ParseInteger parses a base-10 integer, NaN on failure.
func ParseInteger(raw string) float64 {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return math.NaN()
	}
	return float64(n)
}

// ValidateIntegerPlus accepts tier notation such as "12" or "14+".
func ValidateIntegerPlus(raw string) bool {
	return reIntegerPlus.MatchString(raw)
}

// ParseIntegerPlus parses "N" as N and "N+" as N.5.
func ParseIntegerPlus(raw string) float64 {
	m := reIntegerPlus.FindStringSubmatch(raw)
	if m == nil {
		return math.NaN()
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return math.NaN()
	}
	if m[2] != "" {
		return float64(n) + 0.5
	}
	return float64(n)
}

var timeUnits = map[string]float64{
	"d": 86400,
	"h": 3600,
	"m": 60,
	"s": 1,
}

// ValidateTimespan accepts one or more <digits><unit> segments, e.g. "2d 13h 30m".
func ValidateTimespan(raw string) bool {
	return reTimespan.MatchString(raw)
}

// ParseTimespan sums every <digits><unit> segment found in raw, in seconds.
// A segment without a unit counts as seconds. Content between segments is ignored.
func ParseTimespan(raw string) float64 {
	var total float64
	for _, m := range reTimeSegment.FindAllStringSubmatch(raw, -1) {
		v, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		unit := m[2]
		if unit == "" {
			unit = "s"
		}
		total += float64(v) * timeUnits[unit]
	}
	return total
}

// ValidateMultiplier accepts "x1.25" style multipliers.
func ValidateMultiplier(raw string) bool {
	return reMultiplier.MatchString(raw)
}

// ParseMultiplier parses "x1.25" as 1.25.
func ParseMultiplier(raw string) float64 {
	s := strings.Replace(strings.TrimSpace(raw), "x", "", 1)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// ValidateText accepts any string that is not blank after trimming.
func ValidateText(raw string) bool {
	return strings.TrimSpace(raw) != ""
}

// ParseText always returns NaN; text fields carry no numeric value.
func ParseText(string) float64 {
	return math.NaN()
}

// Abbreviate renders n with the largest suffix whose magnitude n meets, using
// decimals fraction digits. Values below 1K are rendered plainly.
func Abbreviate(n float64, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	for i := len(magnitudes) - 1; i >= 0; i-- {
		mg := magnitudes[i]
		if n >= mg.Value {
			return strconv.FormatFloat(n/mg.Value, 'f', decimals, 64) + mg.Suffix
		}
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// FormatDuration renders seconds as "2d 13h 30m 0s". Leading zero units are
// omitted; seconds are always present.
func FormatDuration(seconds float64) string {
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	rem := int64(seconds)
	units := []struct {
		label string
		value int64
	}{{"d", 86400}, {"h", 3600}, {"m", 60}, {"s", 1}}
	var parts []string
	for _, u := range units {
		amount := rem / u.value
		if amount > 0 || len(parts) > 0 || u.label == "s" {
			parts = append(parts, strconv.FormatInt(amount, 10)+u.label)
			rem %= u.value
		}
	}
	return strings.Join(parts, " ")
}
