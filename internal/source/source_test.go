package source

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestDecodeFormats(t *testing.T) {
	img, err := Decode(encodePNG(t, 40, 30))
	require.NoError(t, err)
	assert.Equal(t, "png", img.Format)
	assert.Equal(t, 40, img.Width)
	assert.Equal(t, 30, img.Height)

	img, err = Decode(encodeJPEG(t, 16, 8))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", img.Format)
	assert.Equal(t, 16, img.Width)
}

func TestDecodeRejectsNonImages(t *testing.T) {
	for name, raw := range map[string][]byte{
		"empty":     nil,
		"text":      []byte("this is not an image"),
		"truncated": encodePNG(t, 20, 20)[:30],
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(raw)
			assert.True(t, errors.Is(err, ErrInvalidImage), "got %v", err)
		})
	}
}

// pngHeader is a PNG signature and IHDR chunk declaring w x h RGB pixels,
// with no image data behind it.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 17)
	copy(ihdr, "IHDR")
	binary.BigEndian.PutUint32(ihdr[4:], w)
	binary.BigEndian.PutUint32(ihdr[8:], h)
	ihdr[12], ihdr[13] = 8, 2

	out := []byte("\x89PNG\r\n\x1a\n")
	out = binary.BigEndian.AppendUint32(out, 13)
	out = append(out, ihdr...)
	return binary.BigEndian.AppendUint32(out, crc32.ChecksumIEEE(ihdr))
}

// webpLosslessHeader is a RIFF/VP8L header declaring w x h pixels.
func webpLosslessHeader(w, h uint32) []byte {
	bits := (w - 1) | (h-1)<<14
	chunk := []byte{0x2f}
	chunk = binary.LittleEndian.AppendUint32(chunk, bits)

	out := []byte("RIFF")
	out = binary.LittleEndian.AppendUint32(out, uint32(4+8+len(chunk)+1))
	out = append(out, "WEBPVP8L"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(chunk)))
	out = append(out, chunk...)
	return append(out, 0)
}

func TestDecodeEnforcesPixelLimit(t *testing.T) {
	for name, raw := range map[string][]byte{
		"png":  pngHeader(10000, 10000),
		"webp": webpLosslessHeader(16384, 16384),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(raw)
			assert.ErrorIs(t, err, ErrInvalidImage)
			assert.ErrorContains(t, err, "exceeds pixel limit")
		})
	}
}

func TestDecodeHeadersWithinLimitReachDecoder(t *testing.T) {
	for name, raw := range map[string][]byte{
		"png":  pngHeader(64, 64),
		"webp": webpLosslessHeader(64, 64),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(raw)
			assert.ErrorIs(t, err, ErrInvalidImage)
			assert.NotContains(t, err.Error(), "exceeds pixel limit")
		})
	}
}

func TestSHA1IsStable(t *testing.T) {
	raw := encodePNG(t, 4, 4)
	a, err := Decode(raw)
	require.NoError(t, err)
	b, err := Decode(append([]byte(nil), raw...))
	require.NoError(t, err)
	assert.Equal(t, a.SHA1(), b.SHA1())
	assert.Len(t, a.SHA1(), 40)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "face.png")
	require.NoError(t, os.WriteFile(path, encodePNG(t, 12, 12), 0o644))

	src := File(path)
	assert.Equal(t, path, src.Name())
	img, err := src.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, img.Width)

	_, err = File(filepath.Join(t.TempDir(), "missing.png")).Read(context.Background())
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestUploadSource(t *testing.T) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", "upload.png")
	require.NoError(t, err)
	_, err = part.Write(encodePNG(t, 9, 7))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req, err := http.NewRequest(http.MethodPost, "/predict/image", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))

	headers := req.MultipartForm.File["image"]
	require.Len(t, headers, 1)

	src := Upload(headers[0])
	assert.Equal(t, "upload.png", src.Name())
	img, err := src.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, img.Width)
	assert.Equal(t, 7, img.Height)

	_, err = Upload(nil).Read(context.Background())
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestBytesAndReaderSources(t *testing.T) {
	raw := encodePNG(t, 5, 5)

	img, err := Bytes("inline", raw).Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, raw, img.Raw)

	img, err = Reader("stdin", bytes.NewReader(raw)).Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, img.Height)

	_, err = Reader("junk", strings.NewReader("nope")).Read(context.Background())
	assert.ErrorIs(t, err, ErrInvalidImage)
}
