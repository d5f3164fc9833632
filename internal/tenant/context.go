package tenant

import (
	"context"
	"errors"
)

type contextKey string

const schemaKey contextKey = "tenant_schema"

var ErrNoTenantContext = errors.New("no tenant schema in context")

// ContextWithSchema stores an already validated schema name.
func ContextWithSchema(ctx context.Context, schema string) context.Context {
	return context.WithValue(ctx, schemaKey, schema)
}

func SchemaFromContext(ctx context.Context) (string, error) {
	schema, ok := ctx.Value(schemaKey).(string)
	if !ok || schema == "" {
		return "", ErrNoTenantContext
	}
	return schema, nil
}
