package model

import (
	"errors"
	"fmt"
)

// Error kinds reported by a Pipeline. Every error it returns matches exactly
// one of these with errors.Is.
var (
	ErrModelLoad      = errors.New("model load failed")
	ErrPreprocess     = errors.New("preprocessing failed")
	ErrInference      = errors.New("inference failed")
	ErrModelNotLoaded = errors.New("model not loaded")
)

func loadError(err error) error {
	return fmt.Errorf("%w: %w", ErrModelLoad, err)
}

func preprocessError(err error) error {
	return fmt.Errorf("%w: %w", ErrPreprocess, err)
}

func inferenceError(err error) error {
	return fmt.Errorf("%w: %w", ErrInference, err)
}
