package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllows(t *testing.T) {
	assert.True(t, Allows(RoleAdmin, RoleOperator, RoleAdmin))
	assert.True(t, Allows(RoleOperator, RoleOperator, RoleAdmin))
	assert.False(t, Allows(RoleOperator, RoleAdmin))
	assert.False(t, Allows(Role(""), RoleOperator, RoleAdmin))
	assert.False(t, Allows(RoleAdmin))
}
