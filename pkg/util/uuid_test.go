package util

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentID(t *testing.T) {
	a := ContentID([]byte{0xff, 0xd8})
	assert.Equal(t, a, ContentID([]byte{0xff, 0xd8}))
	assert.NotEqual(t, a, ContentID([]byte{0xff, 0xd9}))
	_, err := uuid.Parse(a)
	require.NoError(t, err)
}

func TestHashUUID(t *testing.T) {
	type cfg struct {
		Kind  string
		Start int
	}
	assert.Equal(t, HashUUID(cfg{"sequential", 0}), HashUUID(cfg{"sequential", 0}))
	assert.NotEqual(t, HashUUID(cfg{"sequential", 0}), HashUUID(cfg{"sequential", 1}))
	assert.Empty(t, HashUUID(make(chan int)))
}

func TestRunID(t *testing.T) {
	assert.NotEqual(t, RunID(), RunID())
}
