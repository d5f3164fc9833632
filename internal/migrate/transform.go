package migrate

import "regexp"

var concurrentlyPattern = regexp.MustCompile(`(?i)\b(INDEX\s+)CONCURRENTLY\b\s*`)

// StripConcurrently drops the CONCURRENTLY keyword from CREATE/DROP/REINDEX
// INDEX statements. A migration file runs as one multi-statement batch, which
// PostgreSQL wraps in an implicit transaction where CONCURRENTLY is rejected.
// This is a keyword rewrite, not SQL parsing: text inside string literals is
// rewritten too.
func StripConcurrently(sql string) string {
	return concurrentlyPattern.ReplaceAllString(sql, "${1}")
}
