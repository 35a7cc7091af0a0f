package model

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"math"
	"sync/atomic"
	"time"

	sync "github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"

	"github.com/Brownie44l1/smile-api/internal/backends"
)

// Pipeline owns one loaded smile model. It starts Unloaded; Load moves it to
// Loaded and Unload (or a failed Load) back to Unloaded. All operations are
// serialised, so one Pipeline can be shared between goroutines while the
// underlying scorer only ever sees one call at a time.
type Pipeline struct {
	mu       sync.Mutex
	runtime  backends.Runtime
	scorer   backends.Scorer
	metadata *Metadata
	digest   string
	logger   *zap.Logger
	timings  *timings
}

type timings struct {
	NumCalls uint64
	TotalNS  uint64
}

// Option configures a Pipeline.
type Option func(p *Pipeline)

func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New returns an Unloaded pipeline that builds scorers with rt.
func New(rt backends.Runtime, opts ...Option) *Pipeline {
	p := &Pipeline{
		runtime: rt,
		logger:  zap.NewNop(),
		timings: &timings{},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("pipeline")
	return p
}

// Load builds a pipeline and loads modelBytes into it. On failure no
// pipeline is returned.
func Load(rt backends.Runtime, modelBytes []byte, opts ...Option) (*Pipeline, error) {
	p := New(rt, opts...)
	if err := p.Load(modelBytes); err != nil {
		return nil, err
	}
	return p, nil
}

// Load replaces the current model with modelBytes.
func (p *Pipeline) Load(modelBytes []byte) error {
	return p.LoadWithMetadata(modelBytes, nil)
}

// LoadWithMetadata loads modelBytes after checking meta against the fixed
// input contract. Any previously loaded model is released first, so a failed
// load always leaves the pipeline Unloaded.
func (p *Pipeline) LoadWithMetadata(modelBytes []byte, meta *Metadata) error {
	if p == nil {
		return loadError(errors.New("nil pipeline"))
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.release(); err != nil {
		p.logger.Warn("failed to release previous model", zap.Error(err))
	}

	if len(modelBytes) == 0 {
		return loadError(errors.New("model bytes are empty"))
	}
	if p.runtime == nil {
		return loadError(errors.New("no inference runtime configured"))
	}
	if err := meta.Validate(); err != nil {
		return loadError(err)
	}

	scorer, err := p.runtime.NewScorer(modelBytes)
	if err != nil {
		return loadError(err)
	}
	if _, err := scorer.InputShape().ImageLayout(); err != nil {
		return loadError(errors.Join(err, scorer.Close()))
	}

	sum := sha1.Sum(modelBytes)
	p.scorer = scorer
	p.metadata = meta
	p.digest = hex.EncodeToString(sum[:])

	p.logger.Info("model loaded",
		zap.String("runtime", p.runtime.Name()),
		zap.String("digest", p.digest),
		zap.Stringer("input_shape", scorer.InputShape()),
		zap.Int("bytes", len(modelBytes)))
	return nil
}

// Classify runs one image through resize, normalisation and the scorer.
func (p *Pipeline) Classify(img image.Image) (*Result, error) {
	if p == nil {
		return nil, ErrModelNotLoaded
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.scorer == nil {
		return nil, ErrModelNotLoaded
	}
	tensor, err := Preprocess(img, p.scorer.InputShape())
	if err != nil {
		return nil, err
	}
	return p.score(tensor)
}

// ClassifyTensor scores an already preprocessed tensor. Its shape must match
// the model input and its values must lie in [0,1].
func (p *Pipeline) ClassifyTensor(tensor *backends.Tensor) (*Result, error) {
	if p == nil {
		return nil, ErrModelNotLoaded
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.scorer == nil {
		return nil, ErrModelNotLoaded
	}
	if err := tensor.Validate(); err != nil {
		return nil, preprocessError(err)
	}
	for i, v := range tensor.Data {
		if v < 0 || v > 1 || math.IsNaN(float64(v)) {
			return nil, preprocessError(fmt.Errorf("value %v at index %d outside [0,1]", v, i))
		}
	}
	return p.score(tensor)
}

func (p *Pipeline) score(tensor *backends.Tensor) (*Result, error) {
	expected := p.scorer.InputShape()
	if !tensor.Shape.Equal(expected) || len(tensor.Data) != expected.Size() {
		return nil, preprocessError(fmt.Errorf("tensor shape %s does not match model input %s", tensor.Shape, expected))
	}

	start := time.Now()
	probability, err := p.scorer.Score(tensor)
	atomic.AddUint64(&p.timings.NumCalls, 1)
	atomic.AddUint64(&p.timings.TotalNS, uint64(time.Since(start)))
	if err != nil {
		return nil, inferenceError(err)
	}
	if math.IsNaN(float64(probability)) || probability < 0 || probability > 1 {
		return nil, inferenceError(fmt.Errorf("score %v outside [0,1]", probability))
	}

	result := NewResult(probability)
	result.ModelDigest = p.digest
	return &result, nil
}

// Unload releases the loaded model. It is a no-op when nothing is loaded.
func (p *Pipeline) Unload() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.release()
}

func (p *Pipeline) release() error {
	if p.scorer == nil {
		return nil
	}
	err := p.scorer.Close()
	p.scorer = nil
	p.metadata = nil
	p.digest = ""
	if err != nil {
		return fmt.Errorf("failed to release scorer: %w", err)
	}
	return nil
}

func (p *Pipeline) Loaded() bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scorer != nil
}

// InputShape is the tensor shape the loaded model consumes.
func (p *Pipeline) InputShape() (backends.Shape, bool) {
	if p == nil {
		return nil, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.scorer == nil {
		return nil, false
	}
	return p.scorer.InputShape(), true
}

// ModelDigest is the hex SHA-1 of the loaded model bytes, empty when Unloaded.
func (p *Pipeline) ModelDigest() string {
	if p == nil {
		return ""
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.digest
}

// Statistics summarises the pipeline state and scorer timings.
type Statistics struct {
	Runtime         string        `json:"runtime"`
	Loaded          bool          `json:"loaded"`
	ModelDigest     string        `json:"model_digest,omitempty"`
	ModelName       string        `json:"model_name,omitempty"`
	ModelVersion    string        `json:"model_version,omitempty"`
	Classifications uint64        `json:"classifications"`
	TotalTime       time.Duration `json:"total_time_ns"`
	AverageTime     time.Duration `json:"average_time_ns"`
}

func (p *Pipeline) Statistics() Statistics {
	if p == nil {
		return Statistics{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	numCalls := atomic.LoadUint64(&p.timings.NumCalls)
	totalNS := atomic.LoadUint64(&p.timings.TotalNS)
	stats := Statistics{
		Loaded:          p.scorer != nil,
		ModelDigest:     p.digest,
		Classifications: numCalls,
		TotalTime:       time.Duration(totalNS),
		AverageTime:     time.Duration(float64(totalNS) / math.Max(1, float64(numCalls))),
	}
	if p.runtime != nil {
		stats.Runtime = p.runtime.Name()
	}
	if p.metadata != nil {
		stats.ModelName = p.metadata.Name
		stats.ModelVersion = p.metadata.Version
	}
	return stats
}
