package db

import "strings"

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike quotes the LIKE wildcards in s so user input matches literally
// under PostgreSQL's default backslash escape.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// ContainsPattern is the LIKE pattern matching s anywhere in a value.
func ContainsPattern(s string) string {
	return "%" + EscapeLike(s) + "%"
}

// PrefixPattern is the LIKE pattern matching values that start with s.
func PrefixPattern(s string) string {
	return EscapeLike(s) + "%"
}
