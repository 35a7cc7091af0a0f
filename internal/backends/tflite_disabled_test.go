//go:build !TFLITE && !ALL

package backends

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTFLiteRuntimeDisabled(t *testing.T) {
	_, err := NewRuntime(RuntimeTFLite)
	assert.ErrorContains(t, err, "TFLITE tag")
}

func TestDefaultRuntimeWithoutTFLite(t *testing.T) {
	assert.Equal(t, RuntimeGo, DefaultRuntime)

	rt, err := NewRuntime("")
	if assert.NoError(t, err) {
		assert.Equal(t, RuntimeGo, rt.Name())
		assert.NoError(t, rt.Destroy())
	}
}
