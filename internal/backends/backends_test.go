package backends

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageLayout(t *testing.T) {
	layout, err := NewShape(1, 128, 128, 3).ImageLayout()
	require.NoError(t, err)
	assert.Equal(t, LayoutNHWC, layout)

	layout, err = NewShape(1, 3, 128, 128).ImageLayout()
	require.NoError(t, err)
	assert.Equal(t, LayoutNCHW, layout)

	for _, shape := range []Shape{
		NewShape(128, 128, 3),
		NewShape(2, 128, 128, 3),
		NewShape(1, 224, 224, 3),
		NewShape(1, 128, 128, 1),
		NewShape(1, 48, 48),
	} {
		_, err := shape.ImageLayout()
		assert.Error(t, err, "shape %s", shape)
	}
}

func TestShapeResolvePinsDynamicBatch(t *testing.T) {
	dynamic := NewShape(-1, 3, 128, 128)
	resolved := dynamic.Resolve()

	assert.Equal(t, NewShape(1, 3, 128, 128), resolved)
	assert.Equal(t, int64(-1), dynamic[0], "Resolve must not mutate the receiver")
	assert.Equal(t, 0, dynamic.Size())
	assert.Equal(t, 128*128*3, resolved.Size())
}

func TestNewTensorChecksSize(t *testing.T) {
	_, err := NewTensor(NewShape(1, 2, 2, 3), make([]float32, 11))
	assert.Error(t, err)

	tensor, err := NewTensor(NewShape(1, 2, 2, 3), make([]float32, 12))
	require.NoError(t, err)
	assert.Len(t, tensor.Data, 12)

	var nilTensor *Tensor
	assert.Error(t, nilTensor.Validate())
}

func TestNewRuntimeRejectsUnknownName(t *testing.T) {
	_, err := NewRuntime("tensorrt")
	assert.ErrorContains(t, err, "unknown runtime")
}

func TestGoRuntimeRejectsEmptyModel(t *testing.T) {
	rt, err := NewRuntime(RuntimeGo, WithNumThreads(2))
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, rt.Destroy())
	}()

	assert.Equal(t, RuntimeGo, rt.Name())
	_, err = rt.NewScorer(nil)
	assert.ErrorIs(t, err, errEmptyModel)
}

func TestPickName(t *testing.T) {
	name, err := pickName([]string{"input_1", "mask"}, "")
	require.NoError(t, err)
	assert.Equal(t, "input_1", name)

	name, err = pickName([]string{"input_1", "mask"}, "mask")
	require.NoError(t, err)
	assert.Equal(t, "mask", name)

	_, err = pickName([]string{"input_1"}, "image")
	assert.Error(t, err)
	_, err = pickName(nil, "")
	assert.Error(t, err)
}

func TestFirstScore(t *testing.T) {
	score, err := firstScore([]float32{0.75, 0.1})
	require.NoError(t, err)
	assert.Equal(t, float32(0.75), score)

	_, err = firstScore(nil)
	assert.Error(t, err)
}
