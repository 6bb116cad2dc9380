package id

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDGenerator(t *testing.T) {
	g := NewUUIDGenerator("ord_")

	a, b := g.NewID(), g.NewID()

	assert.NotEqual(t, a, b)
	require.True(t, strings.HasPrefix(a, "ord_"))
	_, err := uuid.Parse(strings.TrimPrefix(a, "ord_"))
	assert.NoError(t, err)
}
