package model

import (
	"fmt"

	"github.com/Brownie44l1/smile-api/internal/backends"
)

const (
	// Threshold separates the two labels; a probability must be strictly
	// greater to count as a smile.
	Threshold = 0.5

	LabelSmile   = "smile"
	LabelNoSmile = "no-smile"
)

// Metadata describes a model artifact. It is read from an optional JSON
// sidecar next to the model file.
type Metadata struct {
	Name       string   `json:"name"`
	Version    string   `json:"version"`
	InputName  string   `json:"input_name"`
	OutputName string   `json:"output_name"`
	ImageSize  int      `json:"image_size"`
	Labels     []string `json:"labels"`
}

// Validate checks that the metadata describes a model this pipeline can feed.
func (m *Metadata) Validate() error {
	if m == nil {
		return nil
	}
	if m.ImageSize != 0 && m.ImageSize != backends.ImageSize {
		return fmt.Errorf("metadata image_size %d, pipeline requires %d", m.ImageSize, backends.ImageSize)
	}
	if len(m.Labels) != 0 && len(m.Labels) != 2 {
		return fmt.Errorf("metadata lists %d labels, binary classifier requires 2", len(m.Labels))
	}
	return nil
}

// Result is the verdict for one image.
type Result struct {
	Label       string  `json:"label"`
	Probability float32 `json:"probability"`
	Smile       bool    `json:"smile"`
	// ModelDigest identifies the model that produced the verdict.
	ModelDigest string `json:"model_digest,omitempty"`
}

// NewResult classifies a probability against Threshold.
func NewResult(probability float32) Result {
	smile := probability > Threshold
	label := LabelNoSmile
	if smile {
		label = LabelSmile
	}
	return Result{Label: label, Probability: probability, Smile: smile}
}

func (r Result) String() string {
	return fmt.Sprintf("%s (%.2f)", r.Label, r.Probability)
}

type PredictionRequest struct {
	Image []float32 `json:"image"`
}
