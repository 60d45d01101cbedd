package query

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNotReadOnly is returned for statements other than a single SELECT.
var ErrNotReadOnly = errors.New("only a single read-only SELECT statement is allowed")

var (
	forbiddenKeywords = map[string]bool{
		"insert": true, "update": true, "delete": true, "drop": true, "create": true,
		"alter": true, "attach": true, "detach": true, "copy": true, "pragma": true,
		"install": true, "load": true, "export": true, "import": true, "set": true,
		"reset": true, "call": true, "checkpoint": true, "vacuum": true, "truncate": true,
		"use": true, "begin": true, "commit": true, "rollback": true,
	}

	// Table functions and literal paths that would reach outside the loaded table.
	fileAccess = regexp.MustCompile(`(?i)\b(read_\w+|glob|parquet_\w+|sniff_csv|query_table|iceberg_\w+|delta_scan)\s*\(|\b(from|join)\s+'|\b(from|join)\s+"[^"]*[./\\:]`)

	wordPattern = regexp.MustCompile(`[A-Za-z_]+`)
)

// Guard normalises sql and rejects anything but a single read-only query.
func Guard(sql string) (string, error) {
	s := strings.TrimSpace(sql)
	s = strings.TrimSpace(strings.TrimRight(s, "; \n\t"))
	if s == "" {
		return "", ErrNotReadOnly
	}

	bare, ok := stripQuoted(s)
	if !ok || strings.Contains(bare, ";") {
		return "", ErrNotReadOnly
	}
	words := wordPattern.FindAllString(strings.ToLower(bare), -1)
	if len(words) == 0 || (words[0] != "select" && words[0] != "with") {
		return "", ErrNotReadOnly
	}
	for _, w := range words {
		if forbiddenKeywords[w] {
			return "", ErrNotReadOnly
		}
	}
	if fileAccess.MatchString(s) {
		return "", ErrNotReadOnly
	}
	return s, nil
}

// stripQuoted blanks out string literals and quoted identifiers so their contents
// are not mistaken for keywords. It reports false on an unterminated quote.
func stripQuoted(s string) (string, bool) {
	var sb strings.Builder
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote == 0 && (c == '\'' || c == '"'):
			quote = c
			sb.WriteByte(' ')
		case quote != 0 && c == quote:
			if i+1 < len(s) && s[i+1] == quote {
				i++ // escaped quote
				continue
			}
			quote = 0
			sb.WriteByte(' ')
		case quote != 0:
			// inside a quoted span
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String(), quote == 0
}
