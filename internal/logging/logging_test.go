package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	for _, dev := range []bool{true, false} {
		logger, err := NewLogger(dev)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.Equal(t, dev, logger.Core().Enabled(zap.DebugLevel))
	}
}

func TestWithOperationAddsFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	WithOperation(zap.New(core), "usecase.detect", "req-1").Info("classified")
	WithOperation(zap.New(core), "model.reload", "").Info("reloaded")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "usecase.detect", entries[0].ContextMap()["operation"])
	assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
	_, hasRequest := entries[1].ContextMap()["request_id"]
	assert.False(t, hasRequest)
}

func TestOperationError(t *testing.T) {
	assert.Nil(t, NewOperationError("noop", "", nil))

	root := errors.New("disk full")
	err := NewOperationError("history.save", "req-9", root)
	assert.ErrorIs(t, err, root)
	assert.Equal(t, "history.save [req-9]: disk full", err.Error())

	var opErr *OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "history.save", opErr.Operation)

	assert.Equal(t, "cache.get: disk full", NewOperationError("cache.get", "", root).Error())

	var nilErr *OperationError
	assert.Equal(t, "", nilErr.Error())
	assert.Nil(t, nilErr.Unwrap())
}
