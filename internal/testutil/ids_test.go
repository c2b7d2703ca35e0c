package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequentialIDs(t *testing.T) {
	gen := NewSequentialIDs("obs")

	assert.Equal(t, "obs-1", gen.Generate())
	assert.Equal(t, "obs-2", gen.Generate())
	assert.Equal(t, "obs-3", gen.Generate())
}

func TestSequentialIDs_DefaultPrefix(t *testing.T) {
	gen := NewSequentialIDs("")

	assert.Equal(t, "id-1", gen.Generate())
}
