package tenant

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssertValidSchemaName_Accepts(t *testing.T) {
	valid := []string{
		"a",
		"tenant_1",
		"greenwood_high",
		"school42",
		"x_",
		strings.Repeat("a", MaxSchemaNameLength),
	}
	for _, name := range valid {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, AssertValidSchemaName(name))
		})
	}
}

func TestAssertValidSchemaName_Rejects(t *testing.T) {
	invalid := []string{
		"",
		"1tenant",
		"_tenant",
		"Tenant",
		"tenant name",
		"tenant;drop schema public",
		"tenant\"",
		"tenant'",
		"tenant-1",
		"tenant.students",
		"tenant\n",
		"tenant\t",
		"tenant--",
		"tenant/*",
		"écoles",
		strings.Repeat("a", MaxSchemaNameLength+1),
	}
	for _, name := range invalid {
		t.Run(name, func(t *testing.T) {
			err := AssertValidSchemaName(name)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidSchemaName))

			var target *InvalidSchemaNameError
			require.True(t, errors.As(err, &target))
			assert.Equal(t, name, target.Name)
		})
	}
}

func TestQuoteSchema(t *testing.T) {
	quoted, err := QuoteSchema("greenwood_high")
	require.NoError(t, err)
	assert.Equal(t, `"greenwood_high"`, quoted)

	_, err = QuoteSchema(`bad"name`)
	assert.ErrorIs(t, err, ErrInvalidSchemaName)
}
