package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brennhill/editor-control-bridge/internal/logging/logtest"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(FormatText, "not-a-level", nil)
	assert.Error(t, err)
}

func TestNewTextFormatter(t *testing.T) {
	logger, err := New(FormatText, "info", nil)
	require.NoError(t, err)
	_, ok := logger.Formatter.(*logrus.TextFormatter)
	assert.True(t, ok)
}

func TestNewJSONFormatter(t *testing.T) {
	logger, err := New(FormatJSON, "info", nil)
	require.NoError(t, err)
	_, ok := logger.Formatter.(*jsonFormatter)
	assert.True(t, ok)
}

func TestNamedAddsComponentField(t *testing.T) {
	logger, err := New(FormatText, "debug", nil)
	require.NoError(t, err)
	cache := logtest.Attach(logger)

	entry := Named(logger, "dispatch")
	entry.Info("hello")

	drained := cache.Drain()
	require.Len(t, drained, 1)
	assert.Equal(t, "dispatch", drained[0].Data[FieldComponent])
	assert.Equal(t, "hello", drained[0].Message)
}
