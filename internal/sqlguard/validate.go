// Package sqlguard validates and rewrites the model-generated SQL before it
// reaches a database. Validation is allow-list based: single SELECT, one
// known table, no comments or statement chaining. Rewrites adapt standard
// SQL to ClickHouse's function names.
package sqlguard

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// AllowedTable is the only table model-generated SQL may read.
const AllowedTable = "retail_sales"

// AllowedColumns is the fixed schema of the demo table, used for hint text
// in error messages rather than strict token filtering: aliases and
// expressions make reliable column extraction impossible.
var AllowedColumns = []string{
	"date", "store_id", "store_name", "region", "category", "sku", "units", "net_sales",
}

var (
	selectOnly = regexp.MustCompile(`(?is)^\s*select\b`)
	fromTable  = regexp.MustCompile(`(?i)\bfrom\s+([a-zA-Z0-9_.]+)`)
	joinTable  = regexp.MustCompile(`(?i)\bjoin\s+([a-zA-Z0-9_.]+)`)

	// Forbidden lexical tokens: statement chaining and comments.
	forbiddenTokens = []string{";", "--", "/*", "*/"}

	// Word-bounded DDL/DML, matching the patterns the direct query endpoint
	// rejects plus the plain keywords the chat path bans outright.
	forbiddenStatements = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(drop|insert|update|delete|alter|create|truncate|grant|revoke)\b`),
	}
)

// ValidationError carries a hint the model (or a human) can act on; the chat
// loop feeds it back verbatim so the model can correct itself.
type ValidationError struct {
	Reason string
	Hint   string
}

func (e *ValidationError) Error() string {
	if e.Hint == "" {
		return e.Reason
	}
	return e.Reason + "." + " " + e.Hint
}

// AsValidation unwraps err as a *ValidationError if it is one.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// Strip removes a trailing semicolon, a harmless terminator generated models
// love to add, and trims whitespace.
func Strip(sql string) string {
	text := strings.TrimSpace(sql)
	if strings.HasSuffix(text, ";") {
		text = strings.TrimSpace(strings.TrimSuffix(text, ";"))
	}
	return text
}

// Validate checks that sql is a single SELECT over the allowed table.
// Call Strip first; a trailing semicolon fails the forbidden-token check.
func Validate(sql string) error {
	text := strings.TrimSpace(sql)
	if text == "" {
		return &ValidationError{
			Reason: "SQL query is empty",
			Hint:   "Provide a complete SELECT statement, e.g. SELECT column FROM " + AllowedTable + " WHERE condition.",
		}
	}

	for _, tok := range forbiddenTokens {
		if strings.Contains(text, tok) {
			return &ValidationError{
				Reason: "SQL contains forbidden tokens",
				Hint:   "Remove semicolons, comments (--, /* */), or DDL/DML keywords from your SQL.",
			}
		}
	}
	for _, pat := range forbiddenStatements {
		if pat.MatchString(text) {
			return &ValidationError{
				Reason: "SQL contains forbidden tokens",
				Hint:   "Remove semicolons, comments (--, /* */), or DDL/DML keywords from your SQL.",
			}
		}
	}

	if !selectOnly.MatchString(text) {
		return &ValidationError{
			Reason: "Only SELECT statements are allowed",
			Hint:   "Only SELECT queries are allowed. Use SELECT statements only.",
		}
	}

	matches := fromTable.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return &ValidationError{
			Reason: "Missing FROM clause",
			Hint:   "Add 'FROM " + AllowedTable + "' to your SELECT statement.",
		}
	}
	matches = append(matches, joinTable.FindAllStringSubmatch(text, -1)...)
	for _, m := range matches {
		table := m[1]
		if i := strings.LastIndex(table, "."); i >= 0 {
			table = table[i+1:]
		}
		if !strings.EqualFold(table, AllowedTable) {
			return &ValidationError{
				Reason: fmt.Sprintf("Only %s table is allowed", AllowedTable),
				Hint:   "Only use the " + AllowedTable + " table.",
			}
		}
	}

	return nil
}

// Incomplete reports whether sql is an obviously unfinished statement
// (placeholders or a bare SELECT), which deserves a targeted hint before
// any other validation runs.
func Incomplete(sql string) bool {
	text := strings.TrimSpace(sql)
	if text == "" || strings.EqualFold(text, "SELECT") {
		return true
	}
	return strings.Contains(text, "...")
}
