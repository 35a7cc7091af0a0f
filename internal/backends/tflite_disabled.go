//go:build !TFLITE && !ALL

package backends

import "errors"

// DefaultRuntime is the runtime used when none is named. Without TFLite
// compiled in it falls back to the pure Go interpreter.
const DefaultRuntime = RuntimeGo

func newTFLiteRuntime(_ *Options) (Runtime, error) {
	return nil, errors.New("TFLITE runtime is not enabled, build with the TFLITE tag and libtensorflowlite_c installed")
}
