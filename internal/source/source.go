package source

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"

	"github.com/rubenfonseca/fastimage"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Brownie44l1/smile-api/internal/storage"
)

// MaxPixels bounds the decoded size of a single image.
const MaxPixels = 64 << 20

var ErrInvalidImage = errors.New("no valid image")

// Image is a decoded picture together with the bytes it came from.
type Image struct {
	Image  image.Image
	Raw    []byte
	Format string
	Width  int
	Height int
}

// SHA1 is the hex digest of the raw bytes; the detection cache keys on it.
func (i *Image) SHA1() string {
	sum := sha1.Sum(i.Raw)
	return hex.EncodeToString(sum[:])
}

// Source yields one image to classify.
type Source interface {
	Name() string
	Read(ctx context.Context) (*Image, error)
}

// Decode turns raw encoded bytes into an Image. Anything that is empty, not
// an image, or too large to decode safely fails with ErrInvalidImage.
func Decode(raw []byte) (*Image, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidImage)
	}

	// fastimage sizes the common formats from their first bytes; the header
	// check below covers every registered decoder.
	if _, size, err := fastimage.DetectImageTypeFromReader(bytes.NewReader(raw)); err == nil && size != nil {
		if err := checkPixels(int(size.Width), int(size.Height)); err != nil {
			return nil, err
		}
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	if err := checkPixels(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}

	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("%w: image has no pixels", ErrInvalidImage)
	}
	return &Image{
		Image:  img,
		Raw:    raw,
		Format: format,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

func checkPixels(w, h int) error {
	if w < 0 || h < 0 || uint64(w)*uint64(h) > MaxPixels {
		return fmt.Errorf("%w: %dx%d exceeds pixel limit", ErrInvalidImage, w, h)
	}
	return nil
}

type fileSource struct {
	location string
}

// File reads an image from a local path or storage URL.
func File(location string) Source {
	return fileSource{location: location}
}

func (s fileSource) Name() string { return s.location }

func (s fileSource) Read(ctx context.Context) (*Image, error) {
	raw, err := storage.ReadFile(ctx, s.location)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	return Decode(raw)
}

type uploadSource struct {
	header *multipart.FileHeader
}

// Upload reads an image from a multipart form file.
func Upload(header *multipart.FileHeader) Source {
	return uploadSource{header: header}
}

func (s uploadSource) Name() string {
	if s.header == nil {
		return "upload"
	}
	return s.header.Filename
}

func (s uploadSource) Read(_ context.Context) (*Image, error) {
	if s.header == nil {
		return nil, fmt.Errorf("%w: no file provided", ErrInvalidImage)
	}
	file, err := s.header.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	return Decode(raw)
}

type bytesSource struct {
	name string
	raw  []byte
}

// Bytes wraps already-read encoded image bytes.
func Bytes(name string, raw []byte) Source {
	return bytesSource{name: name, raw: raw}
}

func (s bytesSource) Name() string { return s.name }

func (s bytesSource) Read(_ context.Context) (*Image, error) {
	return Decode(s.raw)
}

type readerSource struct {
	name string
	r    io.Reader
}

// Reader consumes r once; a second Read sees whatever is left.
func Reader(name string, r io.Reader) Source {
	return &readerSource{name: name, r: r}
}

func (s *readerSource) Name() string { return s.name }

func (s *readerSource) Read(_ context.Context) (*Image, error) {
	if s.r == nil {
		return nil, fmt.Errorf("%w: no reader", ErrInvalidImage)
	}
	raw, err := io.ReadAll(s.r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	return Decode(raw)
}
