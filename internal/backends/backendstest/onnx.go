// Package backendstest builds tiny ONNX graphs so the runtimes can be
// exercised without shipping a trained model.
package backendstest

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/advancedclimatesystems/gonnx/onnx"
	"google.golang.org/protobuf/proto"
)

const (
	InputName  = "image"
	OutputName = "score"
)

// MeanModel returns a serialized model that scores an input tensor of the
// given shape with the mean of its elements: Flatten followed by a MatMul
// against a constant column of 1/n. A leading 0 marks the batch dimension
// as symbolic.
func MeanModel(shape ...int64) ([]byte, error) {
	if len(shape) < 2 {
		return nil, errors.New("shape needs a batch and at least one feature dimension")
	}
	n := int64(1)
	for _, d := range shape[1:] {
		if d <= 0 {
			return nil, errors.New("feature dimensions must be positive")
		}
		n *= d
	}

	weights := make([]byte, 4*n)
	bits := math.Float32bits(1 / float32(n))
	for i := int64(0); i < n; i++ {
		binary.LittleEndian.PutUint32(weights[4*i:], bits)
	}

	graph := &onnx.GraphProto{
		Name: "mean",
		Node: []*onnx.NodeProto{
			{Name: "flatten", OpType: "Flatten", Input: []string{InputName}, Output: []string{"flat"}},
			{Name: "matmul", OpType: "MatMul", Input: []string{"flat", "weights"}, Output: []string{OutputName}},
		},
		Initializer: []*onnx.TensorProto{{
			Name:     "weights",
			Dims:     []int64{n, 1},
			DataType: int32(onnx.TensorProto_FLOAT),
			RawData:  weights,
		}},
		Input:  []*onnx.ValueInfoProto{valueInfo(InputName, shape)},
		Output: []*onnx.ValueInfoProto{valueInfo(OutputName, []int64{shape[0], 1})},
	}

	return proto.Marshal(&onnx.ModelProto{
		IrVersion:    7,
		ProducerName: "backendstest",
		OpsetImport:  []*onnx.OperatorSetIdProto{{Version: 13}},
		Graph:        graph,
	})
}

func valueInfo(name string, shape []int64) *onnx.ValueInfoProto {
	dims := make([]*onnx.TensorShapeProto_Dimension, len(shape))
	for i, d := range shape {
		if d == 0 {
			dims[i] = &onnx.TensorShapeProto_Dimension{Value: &onnx.TensorShapeProto_Dimension_DimParam{DimParam: "batch"}}
			continue
		}
		dims[i] = &onnx.TensorShapeProto_Dimension{Value: &onnx.TensorShapeProto_Dimension_DimValue{DimValue: d}}
	}
	return &onnx.ValueInfoProto{
		Name: name,
		Type: &onnx.TypeProto{
			Value: &onnx.TypeProto_TensorType{
				TensorType: &onnx.TypeProto_Tensor{
					ElemType: int32(onnx.TensorProto_FLOAT),
					Shape:    &onnx.TensorShapeProto{Dim: dims},
				},
			},
		},
	}
}
