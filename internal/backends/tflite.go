//go:build TFLITE || ALL

package backends

import (
	"errors"
	"fmt"

	"github.com/mattn/go-tflite"
)

// DefaultRuntime is the runtime used when none is named.
const DefaultRuntime = RuntimeTFLite

type tfliteRuntime struct {
	options *Options
}

func newTFLiteRuntime(o *Options) (Runtime, error) {
	return &tfliteRuntime{options: o}, nil
}

func (r *tfliteRuntime) Name() string { return RuntimeTFLite }

func (r *tfliteRuntime) NewScorer(modelBytes []byte) (Scorer, error) {
	if len(modelBytes) == 0 {
		return nil, errEmptyModel
	}

	// the interpreter reads the flatbuffer in place, keep our own copy alive
	buf := make([]byte, len(modelBytes))
	copy(buf, modelBytes)

	model := tflite.NewModel(buf)
	if model == nil {
		return nil, errors.New("tflite: cannot parse model")
	}
	options := tflite.NewInterpreterOptions()
	if r.options.NumThreads > 0 {
		options.SetNumThread(r.options.NumThreads)
	}
	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		options.Delete()
		model.Delete()
		return nil, errors.New("tflite: cannot create interpreter")
	}

	s := &tfliteScorer{buf: buf, model: model, options: options, interpreter: interpreter}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		return nil, errors.Join(fmt.Errorf("tflite: allocate tensors failed with status %v", status), s.Close())
	}

	s.input = interpreter.GetInputTensor(0)
	s.output = interpreter.GetOutputTensor(0)
	if s.input == nil || s.output == nil {
		return nil, errors.Join(errors.New("tflite: model has no input or output tensor"), s.Close())
	}
	if s.input.Type() != tflite.Float32 || s.output.Type() != tflite.Float32 {
		return nil, errors.Join(fmt.Errorf("tflite: expected float32 tensors, got %v -> %v", s.input.Type(), s.output.Type()), s.Close())
	}

	dims := make(Shape, s.input.NumDims())
	for i := range dims {
		dims[i] = int64(s.input.Dim(i))
	}
	s.shape = dims.Resolve()
	if _, err := s.shape.ImageLayout(); err != nil {
		return nil, errors.Join(err, s.Close())
	}
	return s, nil
}

func (r *tfliteRuntime) Destroy() error { return nil }

type tfliteScorer struct {
	buf         []byte
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
	input       *tflite.Tensor
	output      *tflite.Tensor
	shape       Shape
}

func (s *tfliteScorer) InputShape() Shape { return s.shape }

func (s *tfliteScorer) Score(input *Tensor) (float32, error) {
	dst := s.input.Float32s()
	if len(dst) != len(input.Data) {
		return 0, fmt.Errorf("tflite: input tensor holds %d values, got %d", len(dst), len(input.Data))
	}
	copy(dst, input.Data)

	if status := s.interpreter.Invoke(); status != tflite.OK {
		return 0, fmt.Errorf("tflite: invoke failed with status %v", status)
	}
	return firstScore(s.output.Float32s())
}

func (s *tfliteScorer) Close() error {
	if s.interpreter != nil {
		s.interpreter.Delete()
		s.interpreter = nil
	}
	if s.options != nil {
		s.options.Delete()
		s.options = nil
	}
	if s.model != nil {
		s.model.Delete()
		s.model = nil
	}
	s.buf = nil
	return nil
}
