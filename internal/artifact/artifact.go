package artifact

import (
	"context"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/Brownie44l1/smile-api/internal/model"
	"github.com/Brownie44l1/smile-api/internal/storage"
)

// DefaultModelPath is where the bundled model lives relative to the working
// directory.
const DefaultModelPath = "models/smile_detection_model.tflite"

// Artifact is a model file read fully into memory plus its optional metadata.
type Artifact struct {
	Location string
	Model    []byte
	Metadata *model.Metadata
}

// Loader reads the model at ModelPath and, when present, the metadata at
// MetadataPath. An empty MetadataPath looks for a .json sibling of the model.
type Loader struct {
	ModelPath    string
	MetadataPath string
}

func (l Loader) Load(ctx context.Context) (*Artifact, error) {
	if l.ModelPath == "" {
		return nil, errors.New("model path is empty")
	}
	modelBytes, err := storage.ReadFile(ctx, l.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model %s: %w", l.ModelPath, err)
	}

	metadata, err := l.loadMetadata(ctx)
	if err != nil {
		return nil, err
	}
	return &Artifact{Location: l.ModelPath, Model: modelBytes, Metadata: metadata}, nil
}

func (l Loader) loadMetadata(ctx context.Context) (*model.Metadata, error) {
	path := l.MetadataPath
	explicit := path != ""
	if !explicit {
		path = storage.SiblingPath(l.ModelPath, ".json")
		if path == l.ModelPath {
			return nil, nil
		}
	}

	exists, err := storage.Exists(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to check metadata %s: %w", path, err)
	}
	if !exists {
		if explicit {
			return nil, fmt.Errorf("metadata %s not found", path)
		}
		return nil, nil
	}

	raw, err := storage.ReadFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	return ParseMetadata(raw)
}

// ParseMetadata decodes a metadata sidecar.
func ParseMetadata(raw []byte) (*model.Metadata, error) {
	var metadata model.Metadata
	if err := jsoniter.Unmarshal(raw, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &metadata, nil
}
