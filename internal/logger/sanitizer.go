package logger

import (
	"fmt"
	"regexp"
	"strings"
)

// Mask replaces every redacted value.
const Mask = "***REDACTED***"

var defaultSensitive = []string{
	"password", "passwd", "pwd",
	"token", "api_key", "apikey", "api_token",
	"secret", "auth", "authorization",
	"credit_card", "card_number", "cvv", "cvc",
	"ssn", "social_security",
	"private_key", "priv_key",
}

// insertRe splits "INSERT INTO t(cols) VALUES(vals)" into its lists.
var insertRe = regexp.MustCompile(`(?is)^\s*INSERT\s+INTO\s+\S+?\s*\((.*?)\)\s*VALUES\s*\((.*)\)\s*$`)

// Sanitizer keeps secrets out of log lines. The access layer builds SQL by
// concatenation, so literal values must be redacted in the statement text
// itself, not only in bound arguments.
type Sanitizer struct {
	fields   map[string]bool
	any      *regexp.Regexp
	assigned *regexp.Regexp
}

// NewSanitizer creates a sanitizer for the given column names.
// An empty list selects a default set of common sensitive names.
func NewSanitizer(sensitiveFields []string) *Sanitizer {
	if len(sensitiveFields) == 0 {
		sensitiveFields = defaultSensitive
	}

	quoted := make([]string, len(sensitiveFields))
	fields := make(map[string]bool, len(sensitiveFields))
	for i, f := range sensitiveFields {
		quoted[i] = regexp.QuoteMeta(f)
		fields[strings.ToLower(f)] = true
	}
	alt := strings.Join(quoted, "|")

	return &Sanitizer{
		fields: fields,
		any:    regexp.MustCompile(`(?i)\b(` + alt + `)\b`),
		// column = 'literal' | column = token
		assigned: regexp.MustCompile(`(?i)\b(` + alt + `)(\s*=\s*)('[^']*'|[^\s,)]+)`),
	}
}

// Sensitive reports whether sql mentions any sensitive column.
func (s *Sanitizer) Sensitive(sql string) bool {
	return s.any.MatchString(sql)
}

// MaskSQL redacts literals assigned to, compared with or inserted into
// sensitive columns.
func (s *Sanitizer) MaskSQL(sql string) string {
	if !s.Sensitive(sql) {
		return sql
	}

	if m := insertRe.FindStringSubmatchIndex(sql); m != nil {
		cols := splitList(sql[m[2]:m[3]])
		vals := splitList(sql[m[4]:m[5]])
		if len(cols) == len(vals) {
			for i, c := range cols {
				if s.fields[strings.ToLower(strings.TrimSpace(c))] {
					vals[i] = " " + maskLiteral(strings.TrimSpace(vals[i]))
				}
			}
			vals[0] = strings.TrimPrefix(vals[0], " ")
			sql = sql[:m[4]] + strings.Join(vals, ",") + sql[m[5]:]
		}
	}

	return s.assigned.ReplaceAllStringFunc(sql, func(match string) string {
		parts := s.assigned.FindStringSubmatch(match)
		return parts[1] + parts[2] + maskLiteral(parts[3])
	})
}

// MaskParams masks bound arguments when the statement mentions a sensitive
// column. Argument positions are not resolved, so every argument is masked.
// The input slice is not modified.
func (s *Sanitizer) MaskParams(sql string, params []any) []any {
	if len(params) == 0 || !s.Sensitive(sql) {
		return params
	}
	masked := make([]any, len(params))
	for i := range params {
		masked[i] = Mask
	}
	return masked
}

// FormatParams converts parameters to a string representation for logging.
func (s *Sanitizer) FormatParams(params []any) string {
	if len(params) == 0 {
		return "[]"
	}

	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = formatValue(p)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// MaskSecret hides secret inside text, e.g. a DSN built from it.
func MaskSecret(text, secret string) string {
	if secret == "" {
		return text
	}
	return strings.ReplaceAll(text, secret, Mask)
}

func maskLiteral(lit string) string {
	if strings.HasPrefix(lit, "'") {
		return "'" + Mask + "'"
	}
	if strings.EqualFold(lit, "NULL") {
		return lit
	}
	return Mask
}

// splitList splits a comma separated SQL list, ignoring commas inside quotes.
func splitList(list string) []string {
	var (
		out   []string
		start int
		quote bool
	)
	for i := 0; i < len(list); i++ {
		switch list[i] {
		case '\'':
			quote = !quote
		case ',':
			if !quote {
				out = append(out, list[start:i])
				start = i + 1
			}
		}
	}
	return append(out, list[start:])
}

// formatValue truncates very long values to keep log lines readable.
func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}

	str := fmt.Sprintf("%v", v)

	const maxLen = 100
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}
	return str
}
