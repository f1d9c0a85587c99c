package main

import (
	"testing"
	"time"

	"github.com/tj/assert"
)

func TestCommandTree(t *testing.T) {
	root := buildRootCmd()

	serve, _, err := root.Find([]string{"serve"})
	assert.NoError(t, err)
	assert.Equal(t, "serve", serve.Name())

	cleanup, _, err := root.Find([]string{"cleanup"})
	assert.NoError(t, err)

	assert.NoError(t, cleanup.Flags().Parse([]string{"--threshold", "5m"}))
	got, err := cleanup.Flags().GetDuration("threshold")
	assert.NoError(t, err)
	assert.Equal(t, 5*time.Minute, got)
}
