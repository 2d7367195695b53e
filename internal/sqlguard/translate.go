package sqlguard

import (
	"regexp"
	"strings"

	"github.com/facet-labs/facet/internal/sql"
)

// Rewrites from standard SQL to ClickHouse syntax, applied in order.
// Replacement strings may reference capture groups.
var clickhouseRewrites = []struct {
	pattern *regexp.Regexp
	replace string
}{
	// Date functions.
	{regexp.MustCompile(`(?i)\bCURRENT_DATE\s*\(\s*\)`), "today()"},
	{regexp.MustCompile(`(?i)\bCURRENT_DATE\b`), "today()"},
	{regexp.MustCompile(`(?i)\bNOW\s*\(\s*\)`), "now()"},

	// Interval helpers back to native INTERVAL syntax.
	{regexp.MustCompile(`(?i)toIntervalMonth\s*\((\d+)\)`), "INTERVAL $1 MONTH"},
	{regexp.MustCompile(`(?i)toIntervalDay\s*\((\d+)\)`), "INTERVAL $1 DAY"},
	{regexp.MustCompile(`(?i)toIntervalYear\s*\((\d+)\)`), "INTERVAL $1 YEAR"},

	// String functions are lowercase in ClickHouse.
	{regexp.MustCompile(`(?i)\bLENGTH\s*\(`), "length("},
	{regexp.MustCompile(`(?i)\bUPPER\s*\(`), "upper("},
	{regexp.MustCompile(`(?i)\bLOWER\s*\(`), "lower("},

	// EXTRACT(part FROM expr) -> to*(expr).
	{regexp.MustCompile(`(?i)EXTRACT\s*\(\s*YEAR\s+FROM\s+([^)]+)\s*\)`), "toYear($1)"},
	{regexp.MustCompile(`(?i)EXTRACT\s*\(\s*MONTH\s+FROM\s+([^)]+)\s*\)`), "toMonth($1)"},
	{regexp.MustCompile(`(?i)EXTRACT\s*\(\s*DAY\s+FROM\s+([^)]+)\s*\)`), "toDayOfMonth($1)"},

	// YEAR(expr) family.
	{regexp.MustCompile(`(?i)\bYEAR\s*\(([^)]+)\)`), "toYear($1)"},
	{regexp.MustCompile(`(?i)\bMONTH\s*\(([^)]+)\)`), "toMonth($1)"},
	{regexp.MustCompile(`(?i)\bDAY\s*\(([^)]+)\)`), "toDayOfMonth($1)"},

	// DATE_FORMAT -> formatDateTime (format strings are compatible enough).
	{regexp.MustCompile(`(?i)DATE_FORMAT\s*\(`), "formatDateTime("},
}

// TranslateClickHouse rewrites standard SQL into ClickHouse-compatible
// syntax. It is regex-based and best-effort: anything it does not recognize
// passes through for the engine to judge. String literals are masked first
// so rewrites never touch quoted values.
func TranslateClickHouse(query string) string {
	if query == "" {
		return query
	}
	masked, masks := sql.MaskStringLiterals(strings.TrimSpace(query))
	for _, rw := range clickhouseRewrites {
		masked = rw.pattern.ReplaceAllString(masked, rw.replace)
	}
	return sql.UnmaskStringLiterals(masked, masks)
}

var clickhouseUnsupported = []struct {
	pattern *regexp.Regexp
	name    string
}{
	{regexp.MustCompile(`(?i)\bCURRENT_TIMESTAMP\b`), "CURRENT_TIMESTAMP"},
	{regexp.MustCompile(`(?i)\bCURRENT_TIME\b`), "CURRENT_TIME"},
}

// CheckClickHouseCompat reports functions ClickHouse will reject even after
// translation. Literals are masked so a quoted "CURRENT_TIMESTAMP" does not
// trip the check.
func CheckClickHouseCompat(query string) error {
	masked, _ := sql.MaskStringLiterals(query)
	for _, u := range clickhouseUnsupported {
		if u.pattern.MatchString(masked) {
			return &ValidationError{
				Reason: "Unsupported function: " + u.name,
				Hint:   "Use now() instead of " + u.name + ".",
			}
		}
	}
	return nil
}
