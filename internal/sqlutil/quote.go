// Package sqlutil builds safe MySQL identifiers for the history tables.
package sqlutil

import (
	"regexp"
	"strings"
)

// QuoteIdentifier wraps a MySQL identifier in backticks, doubling any backtick inside it.
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

var validIdentifierRegex = regexp.MustCompile("^[a-zA-Z0-9_]+$")

// IsValidIdentifier reports whether name contains only letters, digits and underscores.
func IsValidIdentifier(name string) bool {
	return validIdentifierRegex.MatchString(name)
}

// MaxIdentifierLength is MySQL's limit for table names.
const MaxIdentifierLength = 64

// InvalidIdentifierError is returned for names that cannot be used as a table name.
type InvalidIdentifierError struct {
	Name string
}

func (e *InvalidIdentifierError) Error() string {
	return "invalid identifier: " + e.Name + " (must be 1-64 letters, digits or underscores)"
}

// QuoteIdentifierSafe validates and quotes a name.
func QuoteIdentifierSafe(name string) (string, error) {
	if !IsValidIdentifier(name) || len(name) > MaxIdentifierLength {
		return "", &InvalidIdentifierError{Name: name}
	}
	return QuoteIdentifier(name), nil
}

// TableName joins a configured prefix and a base table name and quotes the result.
func TableName(prefix, base string) (string, error) {
	return QuoteIdentifierSafe(prefix + base)
}
