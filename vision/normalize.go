package vision

import (
	"fmt"
	"io"
	"math"

	"github.com/disintegration/imaging"
)

// Normalizer bounds image size and converts to RGB.
// The zero value uses DefaultMaxSize and DefaultJPEGQuality.
type Normalizer struct {
	MaxSize     int
	JPEGQuality int
}

// Normalize applies the default Normalizer to img
func Normalize(img *RawImage) (*RawImage, error) {
	return Normalizer{}.Normalize(img)
}

// Normalize shrinks img so neither side exceeds MaxSize, keeping the aspect
// ratio and using a Lanczos filter, then converts it to RGB. Images within
// bounds keep their resolution. The result never shares pixels with img.
func (n Normalizer) Normalize(img *RawImage) (*RawImage, error) {
	if img == nil || img.Image == nil {
		return nil, &ProcessingError{Op: "normalize", Err: fmt.Errorf("no image")}
	}

	maxSize := n.maxSize()
	bounds := img.Image.Bounds()
	if bounds.Empty() {
		return nil, &ProcessingError{Op: "normalize", Err: fmt.Errorf("empty image %dx%d", bounds.Dx(), bounds.Dy())}
	}

	// Resize returns a fresh NRGBA copy even when the size is unchanged
	w, h := fitSize(bounds.Dx(), bounds.Dy(), maxSize)
	out := imaging.Resize(img.Image, w, h, imaging.Lanczos)
	dropAlpha(out.Pix)

	return &RawImage{Image: out, Mode: ModeRGB, Format: img.Format}, nil
}

// Prepare decodes r, normalizes the image and returns its base64 JPEG encoding
func (n Normalizer) Prepare(r io.Reader) (string, error) {
	raw, err := Decode(r)
	if err != nil {
		return "", err
	}

	normalized, err := n.Normalize(raw)
	if err != nil {
		return "", err
	}

	return EncodeBase64(normalized, n.JPEGQuality)
}

// PrepareFile is Prepare for an image on disk
func (n Normalizer) PrepareFile(path string) (string, error) {
	raw, err := Load(path)
	if err != nil {
		return "", err
	}

	normalized, err := n.Normalize(raw)
	if err != nil {
		return "", err
	}

	return EncodeBase64(normalized, n.JPEGQuality)
}

func (n Normalizer) maxSize() int {
	if n.MaxSize <= 0 {
		return DefaultMaxSize
	}
	return n.MaxSize
}

// fitSize scales w x h down so both sides fit in maxSize. The shorter side
// is whichever of its floor or ceil keeps the aspect ratio closest, never 0.
func fitSize(w, h, maxSize int) (int, int) {
	if w <= maxSize && h <= maxSize {
		return w, h
	}

	aspect := float64(w) / float64(h)
	if w >= h {
		exact := float64(maxSize) / aspect
		return maxSize, closestSide(exact, func(n float64) float64 {
			return math.Abs(aspect - float64(maxSize)/n)
		})
	}
	exact := float64(maxSize) * aspect
	return closestSide(exact, func(n float64) float64 {
		return math.Abs(aspect - n/float64(maxSize))
	}), maxSize
}

func closestSide(exact float64, dist func(float64) float64) int {
	lo, hi := math.Floor(exact), math.Ceil(exact)
	best := lo
	if lo == 0 || dist(hi) < dist(lo) {
		best = hi
	}
	return max(int(best), 1)
}

// dropAlpha makes every pixel opaque, keeping the straight color channels
func dropAlpha(pix []uint8) {
	for i := 3; i < len(pix); i += 4 {
		pix[i] = 0xff
	}
}
