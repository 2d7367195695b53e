// Package sql provides SQL string manipulation helpers shared by the
// validation and translation layers.
package sql

import (
	"fmt"
	"strings"
)

// StringMask holds a placeholder and the original literal it replaced.
type StringMask struct {
	Placeholder string
	Original    string
}

// MaskStringLiterals replaces string literals with placeholders so regex
// rewrites never match inside quoted values. Both single- and double-quoted
// literals are handled, including doubled ('' or "") and backslash-escaped
// quotes. SQL without quotes is returned as-is without allocating.
func MaskStringLiterals(sql string) (string, []StringMask) {
	if !strings.ContainsAny(sql, `'"`) {
		return sql, nil
	}

	var masks []StringMask
	var result strings.Builder
	result.Grow(len(sql))

	i := 0
	for i < len(sql) {
		ch := sql[i]

		if ch != '\'' && ch != '"' {
			result.WriteByte(ch)
			i++
			continue
		}

		quote := ch
		start := i
		i++

		// Scan to the closing quote.
		for i < len(sql) {
			if sql[i] == quote {
				if i+1 < len(sql) && sql[i+1] == quote {
					i += 2 // doubled quote stays inside the literal
					continue
				}
				if sql[i-1] == '\\' {
					i++
					continue
				}
				break
			}
			i++
		}
		if i < len(sql) {
			i++ // include the closing quote
		}

		placeholder := fmt.Sprintf("__STR_%d__", len(masks))
		masks = append(masks, StringMask{Placeholder: placeholder, Original: sql[start:i]})
		result.WriteString(placeholder)
	}

	return result.String(), masks
}

// UnmaskStringLiterals restores the original literals from their
// placeholders.
func UnmaskStringLiterals(sql string, masks []StringMask) string {
	result := sql
	for _, mask := range masks {
		result = strings.Replace(result, mask.Placeholder, mask.Original, 1)
	}
	return result
}
