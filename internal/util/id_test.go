package util

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	id := NewID("")
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	prefixed := NewID("card")
	assert.True(t, strings.HasPrefix(prefixed, "card_"))
	assert.NotEqual(t, NewID(""), NewID(""))
}

func TestNewSortableIDIsMonotonic(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	prev := NewSortableID(at)
	for i := 0; i < 100; i++ {
		next := NewSortableID(at)
		assert.Greater(t, next, prev)
		prev = next
	}
	assert.Len(t, prev, 26)
}
