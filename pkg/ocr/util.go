package ocr

import "strings"

// snippet returns a shortened version of text for logging.
func snippet(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

// normalizeLines collapses runs of whitespace inside each line and drops
// empty lines, keeping one statistic per line for the matcher.
func normalizeLines(t string) string {
	t = strings.ReplaceAll(t, "\r\n", "\n")
	var out []string
	for _, line := range strings.Split(t, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
