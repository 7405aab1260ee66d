// Package vision prepares user supplied images for vision-language models:
// decoding, bounding the resolution, forcing RGB and encoding for transport.
package vision

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultMaxSize bounds both image dimensions
	DefaultMaxSize = 512

	// DefaultJPEGQuality is used when encoding normalized images
	DefaultJPEGQuality = 90
)

// ColorMode tags the pixel layout of an image
type ColorMode string

const (
	ModeRGB     ColorMode = "RGB"
	ModeRGBA    ColorMode = "RGBA"
	ModeGray    ColorMode = "L"
	ModePalette ColorMode = "P"
	ModeCMYK    ColorMode = "CMYK"
	ModeOther   ColorMode = "other"
)

// RawImage is a decoded raster together with its color mode
type RawImage struct {
	Image  image.Image
	Mode   ColorMode
	Format string // decoder name, empty when built in memory
}

// NewRawImage wraps an in-memory image, deriving its color mode
func NewRawImage(img image.Image) *RawImage {
	return &RawImage{Image: img, Mode: ModeOf(img)}
}

// Width returns the width in pixels
func (r *RawImage) Width() int {
	return r.Image.Bounds().Dx()
}

// Height returns the height in pixels
func (r *RawImage) Height() int {
	return r.Image.Bounds().Dy()
}

// ProcessingError reports an image that could not be decoded, converted or
// encoded. It only affects the request that carried the image.
type ProcessingError struct {
	Op  string
	Err error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("image %s: %v", e.Op, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// ModeOf classifies img the way image libraries name color modes.
// Decoded JPEGs (YCbCr) and fully opaque RGBA rasters count as RGB.
func ModeOf(img image.Image) ColorMode {
	switch m := img.(type) {
	case *image.YCbCr:
		return ModeRGB
	case *image.RGBA:
		if m.Opaque() {
			return ModeRGB
		}
		return ModeRGBA
	case *image.NRGBA:
		if m.Opaque() {
			return ModeRGB
		}
		return ModeRGBA
	case *image.RGBA64:
		if m.Opaque() {
			return ModeRGB
		}
		return ModeRGBA
	case *image.NRGBA64:
		if m.Opaque() {
			return ModeRGB
		}
		return ModeRGBA
	case *image.NYCbCrA:
		return ModeRGBA
	case *image.Gray, *image.Gray16:
		return ModeGray
	case *image.Paletted:
		return ModePalette
	case *image.CMYK:
		return ModeCMYK
	default:
		return ModeOther
	}
}

// Decode reads an encoded image (JPEG, PNG, GIF, BMP, TIFF or WebP)
func Decode(r io.Reader) (*RawImage, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, &ProcessingError{Op: "decode", Err: err}
	}
	return &RawImage{Image: img, Mode: ModeOf(img), Format: format}, nil
}

// DecodeBytes decodes an in-memory encoded image
func DecodeBytes(data []byte) (*RawImage, error) {
	return Decode(bytes.NewReader(data))
}

// Load decodes the image file at path
func Load(path string) (*RawImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ProcessingError{Op: "open", Err: err}
	}
	defer f.Close()

	return Decode(f)
}

// EncodeJPEG encodes img as JPEG. quality <= 0 selects DefaultJPEGQuality.
func EncodeJPEG(img *RawImage, quality int) ([]byte, error) {
	if img == nil || img.Image == nil {
		return nil, &ProcessingError{Op: "encode", Err: fmt.Errorf("no image")}
	}
	if quality <= 0 {
		quality = DefaultJPEGQuality
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img.Image, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, &ProcessingError{Op: "encode", Err: err}
	}
	return buf.Bytes(), nil
}

// EncodeBase64 returns the base64 JPEG form expected by Ollama's images field
func EncodeBase64(img *RawImage, quality int) (string, error) {
	data, err := EncodeJPEG(img, quality)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
