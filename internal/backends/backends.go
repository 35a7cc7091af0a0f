package backends

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// ImageSize is the square input resolution every smile model is trained at.
	ImageSize = 128
	// Channels is the number of colour channels per pixel (RGB).
	Channels = 3
)

// Runtime names accepted by NewRuntime.
const (
	RuntimeTFLite = "TFLITE"
	RuntimeORT    = "ORT"
	RuntimeGo     = "GO"
)

var errEmptyModel = errors.New("model bytes are empty")

// Scorer is the opaque scoring function of a loaded model: it maps a tensor of
// InputShape to a single probability. Implementations are not safe for
// concurrent use.
type Scorer interface {
	InputShape() Shape
	Score(input *Tensor) (float32, error)
	Close() error
}

// Runtime builds scorers from serialized model bytes.
type Runtime interface {
	Name() string
	NewScorer(modelBytes []byte) (Scorer, error)
	Destroy() error
}

// Options configure a runtime.
type Options struct {
	LibraryPath string
	NumThreads  int
	InputName   string
	OutputName  string
}

// WithOption is the interface for all option functions.
type WithOption func(o *Options)

// WithLibraryPath sets the path to the onnxruntime shared library.
func WithLibraryPath(path string) WithOption {
	return func(o *Options) {
		o.LibraryPath = path
	}
}

// WithNumThreads sets the number of threads the runtime may use per inference.
// Zero leaves the runtime default.
func WithNumThreads(n int) WithOption {
	return func(o *Options) {
		o.NumThreads = n
	}
}

// WithTensorNames selects the model input and output by name instead of
// taking the first of each.
func WithTensorNames(input, output string) WithOption {
	return func(o *Options) {
		o.InputName = input
		o.OutputName = output
	}
}

// NewRuntime creates the named runtime. An empty name selects DefaultRuntime.
func NewRuntime(name string, opts ...WithOption) (Runtime, error) {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		name = DefaultRuntime
	}
	switch name {
	case RuntimeTFLite:
		return newTFLiteRuntime(o)
	case RuntimeORT:
		return newORTRuntime(o)
	case RuntimeGo:
		return newGoRuntime(o)
	default:
		return nil, fmt.Errorf("unknown runtime %q (expected %s, %s or %s)", name, RuntimeTFLite, RuntimeORT, RuntimeGo)
	}
}

func pickName(names []string, wanted string) (string, error) {
	if len(names) == 0 {
		return "", errors.New("model declares no tensors")
	}
	if wanted == "" {
		return names[0], nil
	}
	for _, n := range names {
		if n == wanted {
			return n, nil
		}
	}
	return "", fmt.Errorf("tensor %q not found in %v", wanted, names)
}

func firstScore(values []float32) (float32, error) {
	if len(values) == 0 {
		return 0, errors.New("model produced no output")
	}
	return values[0], nil
}
