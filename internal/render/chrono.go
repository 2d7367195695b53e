package render

import (
	"strings"
	"time"
)

// chronoLayouts are tried in order when sorting a temporal axis. Longest
// forms first so prefixes never mis-parse. Bare integers are deliberately
// not dates; they fall through to lexicographic comparison.
var chronoLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"2006-01",
	"2006/01",
	"2006",
	"Jan 2, 2006",
	"January 2006",
	"Jan 2006",
}

func parseChrono(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range chronoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// chronoLess orders two x keys chronologically, falling back to string
// comparison for the pair when either side fails to parse. A failed parse
// never disturbs the rest of the sort.
func chronoLess(a, b string) bool {
	ta, aok := parseChrono(a)
	tb, bok := parseChrono(b)
	if aok && bok {
		return ta.Before(tb)
	}
	return a < b
}
