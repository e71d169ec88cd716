package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateSchemaName(t *testing.T) {
	name := GenerateSchemaName(t)
	assert.True(t, strings.HasPrefix(name, "test_testgenerateschemaname_"))
	assert.LessOrEqual(t, len(name), 63)
	assert.NotEqual(t, name, GenerateSchemaName(t))
}

func TestAddSearchPathToConnString(t *testing.T) {
	assert.Equal(t, "postgres://h/db?search_path=s",
		AddSearchPathToConnString("postgres://h/db", "s"))
	assert.Equal(t, "postgres://h/db?sslmode=disable&search_path=s",
		AddSearchPathToConnString("postgres://h/db?sslmode=disable", "s"))
}
