package backends

import (
	"fmt"

	"github.com/advancedclimatesystems/gonnx"
	"gorgonia.org/tensor"
)

// goRuntime runs ONNX models with the pure Go gonnx interpreter. It needs no
// shared library, which makes it the runtime of choice for tests and for
// hosts without onnxruntime.
type goRuntime struct {
	options *Options
}

func newGoRuntime(o *Options) (Runtime, error) {
	return &goRuntime{options: o}, nil
}

func (r *goRuntime) Name() string { return RuntimeGo }

func (r *goRuntime) NewScorer(modelBytes []byte) (Scorer, error) {
	if len(modelBytes) == 0 {
		return nil, errEmptyModel
	}

	model, err := gonnx.NewModelFromBytes(modelBytes)
	if err != nil {
		return nil, err
	}

	inputName, err := pickName(model.InputNames(), r.options.InputName)
	if err != nil {
		return nil, err
	}
	outputName, err := pickName(model.OutputNames(), r.options.OutputName)
	if err != nil {
		return nil, err
	}

	dims := model.InputShapes()[inputName]
	shape := make(Shape, len(dims))
	for i, d := range dims {
		shape[i] = d.Size
	}
	shape = shape.Resolve()
	if _, err := shape.ImageLayout(); err != nil {
		return nil, err
	}

	return &goScorer{model: model, inputName: inputName, outputName: outputName, shape: shape}, nil
}

func (r *goRuntime) Destroy() error { return nil }

type goScorer struct {
	model      *gonnx.Model
	inputName  string
	outputName string
	shape      Shape
}

func (s *goScorer) InputShape() Shape { return s.shape }

func (s *goScorer) Score(input *Tensor) (float32, error) {
	backing := make([]float32, len(input.Data))
	copy(backing, input.Data)

	inputs := map[string]tensor.Tensor{
		s.inputName: tensor.New(
			tensor.WithShape(s.shape.Ints()...),
			tensor.WithBacking(backing),
		),
	}
	outputs, err := s.model.Run(inputs)
	if err != nil {
		return 0, fmt.Errorf("inference failed: %w", err)
	}

	out, ok := outputs[s.outputName]
	if !ok {
		return 0, fmt.Errorf("output %s missing from model results", s.outputName)
	}
	switch data := out.Data().(type) {
	case []float32:
		return firstScore(data)
	case float32:
		return data, nil
	case []float64:
		if len(data) == 0 {
			return firstScore(nil)
		}
		return float32(data[0]), nil
	default:
		return 0, fmt.Errorf("output type %T is not supported", data)
	}
}

func (s *goScorer) Close() error {
	s.model = nil
	return nil
}
