package usecase

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Brownie44l1/smile-api/internal/artifact"
	"github.com/Brownie44l1/smile-api/internal/backends"
	"github.com/Brownie44l1/smile-api/internal/cache"
	"github.com/Brownie44l1/smile-api/internal/history"
	"github.com/Brownie44l1/smile-api/internal/imaging"
	"github.com/Brownie44l1/smile-api/internal/logging"
	"github.com/Brownie44l1/smile-api/internal/model"
	"github.com/Brownie44l1/smile-api/internal/notify"
	"github.com/Brownie44l1/smile-api/internal/source"
)

var (
	ErrHistoryDisabled = errors.New("history is not enabled")
	ErrNoArtifact      = errors.New("no model artifact configured")
)

// Classifier is the part of *model.Pipeline the use case drives.
type Classifier interface {
	LoadWithMetadata(modelBytes []byte, meta *model.Metadata) error
	Unload() error
	Classify(img image.Image) (*model.Result, error)
	ClassifyTensor(tensor *backends.Tensor) (*model.Result, error)
	Loaded() bool
	InputShape() (backends.Shape, bool)
	ModelDigest() string
	Statistics() model.Statistics
}

// History persists detections.
type History interface {
	Save(ctx context.Context, e *history.Entry) error
	Get(ctx context.Context, id string) (*history.Entry, error)
	Recent(ctx context.Context, limit int) ([]*history.Entry, error)
}

// ArtifactLoader fetches the model bytes and metadata.
type ArtifactLoader interface {
	Load(ctx context.Context) (*artifact.Artifact, error)
}

// Detection is the outcome of one Detect call.
type Detection struct {
	RequestID string       `json:"request_id"`
	Source    string       `json:"source"`
	Result    model.Result `json:"result"`
	Message   string       `json:"message"`
	ImageSHA1 string       `json:"image_sha1"`
	Width     int          `json:"width"`
	Height    int          `json:"height"`
	Cached    bool         `json:"cached"`
	Preview   []byte       `json:"-"`
	CreatedAt time.Time    `json:"created_at"`
}

// DetectionUseCase runs images through the pipeline and reports every
// outcome to the notifier.
type DetectionUseCase struct {
	pipeline Classifier
	notifier notify.Notifier
	cache    cache.Cache
	history  History
	loader   ArtifactLoader
	logger   *zap.Logger

	detections uint64
	cacheHits  uint64
	failures   uint64
}

type Option func(uc *DetectionUseCase)

func WithCache(c cache.Cache) Option {
	return func(uc *DetectionUseCase) {
		if c != nil {
			uc.cache = c
		}
	}
}

func WithHistory(h History) Option {
	return func(uc *DetectionUseCase) { uc.history = h }
}

func WithArtifactLoader(l ArtifactLoader) Option {
	return func(uc *DetectionUseCase) { uc.loader = l }
}

func NewDetectionUseCase(pipeline Classifier, notifier notify.Notifier, logger *zap.Logger, opts ...Option) *DetectionUseCase {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	uc := &DetectionUseCase{
		pipeline: pipeline,
		notifier: notifier,
		cache:    cache.Nop{},
		logger:   logger.Named("detection_usecase"),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

type detectConfig struct {
	preview bool
}

// DetectOption tunes a single Detect call.
type DetectOption func(c *detectConfig)

// WithPreview asks for a JPEG thumbnail in the returned Detection.
func WithPreview() DetectOption {
	return func(c *detectConfig) { c.preview = true }
}

// Detect reads one image from src and classifies it.
func (uc *DetectionUseCase) Detect(ctx context.Context, src source.Source, opts ...DetectOption) (*Detection, error) {
	cfg := detectConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.detect", requestID)
	atomic.AddUint64(&uc.detections, 1)

	if src == nil {
		return nil, uc.fail(ctx, opLogger, "usecase.read_image", requestID, source.ErrInvalidImage)
	}
	img, err := src.Read(ctx)
	if err != nil {
		return nil, uc.fail(ctx, opLogger, "usecase.read_image", requestID, err)
	}

	detection := &Detection{
		RequestID: requestID,
		Source:    src.Name(),
		ImageSHA1: img.SHA1(),
		Width:     img.Width,
		Height:    img.Height,
		CreatedAt: time.Now().UTC(),
	}

	modelDigest := uc.pipeline.ModelDigest()
	key := cache.Key(modelDigest, detection.ImageSHA1)
	if modelDigest != "" {
		if entry, err := uc.cache.Get(ctx, key); err == nil {
			atomic.AddUint64(&uc.cacheHits, 1)
			detection.Result = entry.Result
			detection.Cached = true
		} else if !errors.Is(err, cache.ErrMiss) {
			opLogger.Warn("failed to read cache", zap.Error(err))
		}
	}

	if !detection.Cached {
		result, err := uc.pipeline.Classify(img.Image)
		if err != nil {
			return nil, uc.fail(ctx, opLogger, "usecase.classify", requestID, err)
		}
		detection.Result = *result
		// A reload may have landed since the lookup; file the verdict under
		// the model that produced it.
		modelDigest = result.ModelDigest
		key = cache.Key(modelDigest, detection.ImageSHA1)
	}
	detection.Message = detection.Result.String()

	if cfg.preview || uc.history != nil {
		preview, err := imaging.PreviewJPEG(img.Image, imaging.DefaultPreviewSize)
		if err != nil {
			opLogger.Warn("failed to render preview", zap.Error(err))
		}
		detection.Preview = preview
	}

	if uc.history != nil {
		entry := &history.Entry{
			ID:          requestID,
			Source:      detection.Source,
			Label:       detection.Result.Label,
			Probability: detection.Result.Probability,
			Smile:       detection.Result.Smile,
			ImageSHA1:   detection.ImageSHA1,
			ModelDigest: modelDigest,
			Preview:     detection.Preview,
			CreatedAt:   detection.CreatedAt,
		}
		if err := uc.history.Save(ctx, entry); err != nil {
			opLogger.Error("failed to persist detection",
				zap.Error(logging.NewOperationError("usecase.save_history", requestID, err)))
		}
	}
	if !cfg.preview {
		detection.Preview = nil
	}

	if modelDigest != "" && !detection.Cached {
		entry := &cache.Entry{RequestID: requestID, Result: detection.Result, CreatedAt: detection.CreatedAt}
		if err := uc.cache.Set(ctx, key, entry); err != nil {
			opLogger.Warn("failed to cache detection", zap.Error(err))
		}
	}

	opLogger.Info("image classified",
		zap.String("source", detection.Source),
		zap.String("label", detection.Result.Label),
		zap.Float32("probability", detection.Result.Probability),
		zap.Bool("cached", detection.Cached))
	uc.notify(ctx, notify.ResultMessage(&detection.Result))
	return detection, nil
}

// PredictTensor scores a caller-prepared tensor laid out in the model's
// input shape.
func (uc *DetectionUseCase) PredictTensor(ctx context.Context, data []float32) (*model.Result, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.predict_tensor", requestID)
	atomic.AddUint64(&uc.detections, 1)

	shape, ok := uc.pipeline.InputShape()
	if !ok {
		return nil, uc.fail(ctx, opLogger, "usecase.predict_tensor", requestID, model.ErrModelNotLoaded)
	}
	tensor, err := backends.NewTensor(shape, data)
	if err != nil {
		return nil, uc.fail(ctx, opLogger, "usecase.predict_tensor", requestID, fmt.Errorf("%w: %w", model.ErrPreprocess, err))
	}
	result, err := uc.pipeline.ClassifyTensor(tensor)
	if err != nil {
		return nil, uc.fail(ctx, opLogger, "usecase.predict_tensor", requestID, err)
	}
	uc.notify(ctx, notify.ResultMessage(result))
	return result, nil
}

// Reload re-reads the model artifact and loads it. On failure the pipeline
// is left Unloaded and classification reports ErrModelNotLoaded until a
// later Reload succeeds.
func (uc *DetectionUseCase) Reload(ctx context.Context) error {
	opLogger := logging.WithOperation(uc.logger, "usecase.reload", "")
	if uc.loader == nil {
		return uc.fail(ctx, opLogger, "usecase.reload", "", fmt.Errorf("%w: %w", model.ErrModelLoad, ErrNoArtifact))
	}

	a, err := uc.loader.Load(ctx)
	if err != nil {
		if unloadErr := uc.pipeline.Unload(); unloadErr != nil {
			opLogger.Warn("failed to release previous model", zap.Error(unloadErr))
		}
		return uc.fail(ctx, opLogger, "usecase.read_artifact", "", fmt.Errorf("%w: %w", model.ErrModelLoad, err))
	}
	return uc.Load(ctx, a)
}

// Load installs an artifact that has already been read.
func (uc *DetectionUseCase) Load(ctx context.Context, a *artifact.Artifact) error {
	opLogger := logging.WithOperation(uc.logger, "usecase.load_model", "")
	if a == nil {
		return uc.fail(ctx, opLogger, "usecase.load_model", "", fmt.Errorf("%w: %w", model.ErrModelLoad, ErrNoArtifact))
	}
	if err := uc.pipeline.LoadWithMetadata(a.Model, a.Metadata); err != nil {
		return uc.fail(ctx, opLogger, "usecase.load_model", "", err)
	}

	opLogger.Info("model ready", zap.String("location", a.Location), zap.String("digest", uc.pipeline.ModelDigest()))
	uc.notify(ctx, notify.Info(notify.TextModelLoaded))
	return nil
}

// Result looks up a past detection.
func (uc *DetectionUseCase) Result(ctx context.Context, id string) (*history.Entry, error) {
	if uc.history == nil {
		return nil, ErrHistoryDisabled
	}
	return uc.history.Get(ctx, id)
}

// Recent lists the newest detections.
func (uc *DetectionUseCase) Recent(ctx context.Context, limit int) ([]*history.Entry, error) {
	if uc.history == nil {
		return nil, ErrHistoryDisabled
	}
	return uc.history.Recent(ctx, limit)
}

func (uc *DetectionUseCase) fail(ctx context.Context, logger *zap.Logger, operation, requestID string, err error) error {
	atomic.AddUint64(&uc.failures, 1)
	wrapped := logging.NewOperationError(operation, requestID, err)
	msg := notify.MessageFor(err)
	logger.Warn(msg.Text, zap.Error(wrapped))
	uc.notify(ctx, msg)
	return wrapped
}

func (uc *DetectionUseCase) notify(ctx context.Context, msg notify.Message) {
	if err := uc.notifier.Notify(ctx, msg); err != nil {
		uc.logger.Warn("notifier failed", zap.String("message", msg.Text), zap.Error(err))
	}
}
