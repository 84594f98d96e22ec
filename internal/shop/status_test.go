package shop

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusDraft, StatusComplete))
	assert.False(t, CanTransition(StatusComplete, StatusDraft))
	assert.False(t, CanTransition(StatusComplete, StatusComplete))
	assert.False(t, CanTransition("", StatusComplete))
}
