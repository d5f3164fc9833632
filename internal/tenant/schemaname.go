package tenant

import (
	"errors"
	"fmt"
	"regexp"

	"schoolhub/internal/db"
)

// MaxSchemaNameLength is PostgreSQL's identifier limit (NAMEDATALEN-1).
const MaxSchemaNameLength = 63

var (
	ErrInvalidSchemaName = errors.New("invalid schema name")

	schemaNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

// InvalidSchemaNameError reports why a schema name was rejected.
type InvalidSchemaNameError struct {
	Name   string
	Reason string
}

func (e *InvalidSchemaNameError) Error() string {
	return fmt.Sprintf("invalid schema name %q: %s", e.Name, e.Reason)
}

func (e *InvalidSchemaNameError) Is(target error) bool {
	return target == ErrInvalidSchemaName
}

// AssertValidSchemaName must pass before a schema name is placed in SQL text.
func AssertValidSchemaName(name string) error {
	switch {
	case name == "":
		return &InvalidSchemaNameError{Name: name, Reason: "empty"}
	case len(name) > MaxSchemaNameLength:
		return &InvalidSchemaNameError{Name: name, Reason: fmt.Sprintf("longer than %d bytes", MaxSchemaNameLength)}
	case !schemaNamePattern.MatchString(name):
		return &InvalidSchemaNameError{Name: name, Reason: "must match ^[a-z][a-z0-9_]*$"}
	}
	return nil
}

// QuoteSchema validates name and returns it as a quoted identifier.
func QuoteSchema(name string) (string, error) {
	if err := AssertValidSchemaName(name); err != nil {
		return "", err
	}
	return db.QuoteIdent(name), nil
}
