package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "chatty"})
	assert.Error(t, err)
}

func TestNewFromLevelFallsBackToNop(t *testing.T) {
	logger := NewFromLevel("chatty", false)
	require.NotNil(t, logger)
	logger.Info("discarded")
}

func TestComponentNamesChild(t *testing.T) {
	logger, err := New(Config{Level: "warn", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)

	child := logger.Component("signing")
	assert.NotSame(t, logger.Logger, child.Logger)
}
