//go:build !NOORT || ALL

package backends

import (
	"errors"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

type ortRuntime struct {
	options        *Options
	sessionOptions *ort.SessionOptions
}

func newORTRuntime(o *Options) (Runtime, error) {
	if ort.IsInitialized() {
		return nil, errors.New("another onnxruntime environment is active, and only one can be active at one time")
	}
	if o.LibraryPath != "" {
		ort.SetSharedLibraryPath(o.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	if err := ort.DisableTelemetry(); err != nil {
		return nil, errors.Join(err, ort.DestroyEnvironment())
	}

	sessionOptions, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Join(err, ort.DestroyEnvironment())
	}
	if o.NumThreads > 0 {
		if err := sessionOptions.SetIntraOpNumThreads(o.NumThreads); err != nil {
			return nil, errors.Join(err, sessionOptions.Destroy(), ort.DestroyEnvironment())
		}
	}
	return &ortRuntime{options: o, sessionOptions: sessionOptions}, nil
}

func (r *ortRuntime) Name() string { return RuntimeORT }

func (r *ortRuntime) NewScorer(modelBytes []byte) (Scorer, error) {
	if len(modelBytes) == 0 {
		return nil, errEmptyModel
	}

	inputs, outputs, err := ort.GetInputOutputInfoWithONNXData(modelBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to read model inputs: %w", err)
	}
	input, err := pickORTInfo(inputs, r.options.InputName)
	if err != nil {
		return nil, err
	}
	output, err := pickORTInfo(outputs, r.options.OutputName)
	if err != nil {
		return nil, err
	}

	inputShape := Shape(input.Dimensions).Resolve()
	if _, err := inputShape.ImageLayout(); err != nil {
		return nil, err
	}
	outputShape := Shape(output.Dimensions).Resolve()
	if outputShape.Size() == 0 {
		outputShape = NewShape(1, 1)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(inputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(outputShape...))
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create output tensor: %w", err), inputTensor.Destroy())
	}

	session, err := ort.NewAdvancedSessionWithONNXData(modelBytes,
		[]string{input.Name}, []string{output.Name},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor},
		r.sessionOptions)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create ONNX session: %w", err),
			inputTensor.Destroy(), outputTensor.Destroy())
	}

	return &ortScorer{
		session:      session,
		shape:        inputShape,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (r *ortRuntime) Destroy() error {
	var errs []error
	if r.sessionOptions != nil {
		errs = append(errs, r.sessionOptions.Destroy())
		r.sessionOptions = nil
	}
	if ort.IsInitialized() {
		errs = append(errs, ort.DestroyEnvironment())
	}
	return errors.Join(errs...)
}

func pickORTInfo(infos []ort.InputOutputInfo, wanted string) (ort.InputOutputInfo, error) {
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	name, err := pickName(names, wanted)
	if err != nil {
		return ort.InputOutputInfo{}, err
	}
	for _, info := range infos {
		if info.Name == name {
			return info, nil
		}
	}
	return ort.InputOutputInfo{}, fmt.Errorf("tensor %q not found", name)
}

type ortScorer struct {
	session      *ort.AdvancedSession
	shape        Shape
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

func (s *ortScorer) InputShape() Shape { return s.shape }

func (s *ortScorer) Score(input *Tensor) (float32, error) {
	copy(s.inputTensor.GetData(), input.Data)

	if err := s.session.Run(); err != nil {
		return 0, fmt.Errorf("inference failed: %w", err)
	}
	return firstScore(s.outputTensor.GetData())
}

func (s *ortScorer) Close() error {
	var errs []error
	if s.session != nil {
		errs = append(errs, s.session.Destroy())
		s.session = nil
	}
	if s.inputTensor != nil {
		errs = append(errs, s.inputTensor.Destroy())
		s.inputTensor = nil
	}
	if s.outputTensor != nil {
		errs = append(errs, s.outputTensor.Destroy())
		s.outputTensor = nil
	}
	return errors.Join(errs...)
}
