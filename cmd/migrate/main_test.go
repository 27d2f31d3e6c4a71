package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrateArgs(t *testing.T) {
	assert.Equal(t, []string{"migrate", "up"}, migrateArgs(nil))
	assert.Equal(t, []string{"migrate", "force", "3"}, migrateArgs([]string{"force", "3"}))
}
