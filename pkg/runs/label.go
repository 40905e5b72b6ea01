package runs

import (
	"regexp"
	"strings"
)

var (
	reLowerUpper  = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	reLetterDigit = regexp.MustCompile(`([a-zA-Z])([0-9])`)
)

// labelOverrides fix casing where the game does not use Title Case.
var labelOverrides = []struct{ prefix, replacement string }{
	{"hp ", "HP "},
	{"coins From ", "Coins from "},
	{"cash From ", "Cash from "},
	{"destroyed By ", "Destroyed by "},
}

// CamelCaseToLabel turns a field key such as "coinsEarned" into the label the
// game prints, "Coins Earned".
func CamelCaseToLabel(camel string) string {
	s := reLowerUpper.ReplaceAllString(camel, "$1 $2")
	s = reLetterDigit.ReplaceAllString(s, "$1 $2")
	for _, o := range labelOverrides {
		if strings.HasPrefix(s, o.prefix) {
			return o.replacement + s[len(o.prefix):]
		}
	}
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
