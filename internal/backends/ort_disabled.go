//go:build NOORT && !ALL

package backends

import "errors"

func newORTRuntime(_ *Options) (Runtime, error) {
	return nil, errors.New("ORT runtime is not enabled, build without the NOORT tag")
}
