package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainsSuspicious(t *testing.T) {
	assert.False(t, ContainsSuspicious("extra spicy, no onions"))
	assert.False(t, ContainsSuspicious(""))

	assert.True(t, ContainsSuspicious("<script>alert(1)</script>"))
	assert.True(t, ContainsSuspicious("ONERROR=steal()"))
	assert.True(t, ContainsSuspicious("${jndi:ldap://x}"))
}

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "a &amp; b", SanitizeInput("  a & b  "))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "ada@example.com", NormalizeEmail("  Ada@Example.COM "))
}
