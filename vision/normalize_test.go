package vision

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/color/palette"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradientRGBA(w, h int, alpha uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: uint8(x + y), A: alpha})
		}
	}
	return img
}

func assertOpaque(t *testing.T, img image.Image) {
	t.Helper()
	nrgba, ok := img.(*image.NRGBA)
	require.True(t, ok, "expected *image.NRGBA, got %T", img)
	assert.True(t, nrgba.Opaque())
}

func TestNormalize_ShrinksLargeRGBA(t *testing.T) {
	raw := NewRawImage(gradientRGBA(1024, 768, 128))
	require.Equal(t, ModeRGBA, raw.Mode)

	got, err := Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, 512, got.Width())
	assert.Equal(t, 384, got.Height())
	assert.Equal(t, ModeRGB, got.Mode)
	assertOpaque(t, got.Image)
}

func TestNormalize_BoundsLargerSide(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		wantW, wantH int
	}{
		{name: "portrait", w: 256, h: 1024, wantW: 128, wantH: 512},
		{name: "square", w: 2000, h: 2000, wantW: 512, wantH: 512},
		{name: "one side over", w: 600, h: 300, wantW: 512, wantH: 256},
		{name: "exactly at bound", w: 512, h: 100, wantW: 512, wantH: 100},
		{name: "small", w: 40, h: 30, wantW: 40, wantH: 30},
		{name: "rounds up to nearest aspect", w: 700, h: 90, wantW: 512, wantH: 66},
		{name: "keeps floor when closer", w: 1000, h: 333, wantW: 512, wantH: 170},
		{name: "tall rounds", w: 90, h: 700, wantW: 66, wantH: 512},
		{name: "thin strip stays one pixel", w: 5000, h: 2, wantW: 512, wantH: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(NewRawImage(gradientRGBA(tt.w, tt.h, 255)))
			require.NoError(t, err)
			assert.Equal(t, tt.wantW, got.Width())
			assert.Equal(t, tt.wantH, got.Height())
		})
	}
}

func TestNormalize_WithinBoundsOnlyConvertsColor(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 64, 32))
	for i := range gray.Pix {
		gray.Pix[i] = uint8(i)
	}

	pal := image.NewPaletted(image.Rect(0, 0, 16, 16), palette.Plan9)
	for i := range pal.Pix {
		pal.Pix[i] = uint8(i % len(palette.Plan9))
	}

	tests := []struct {
		name string
		img  image.Image
		mode ColorMode
	}{
		{name: "gray", img: gray, mode: ModeGray},
		{name: "palette", img: pal, mode: ModePalette},
		{name: "cmyk", img: image.NewCMYK(image.Rect(0, 0, 8, 8)), mode: ModeCMYK},
		{name: "rgb", img: gradientRGBA(100, 50, 255), mode: ModeRGB},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := NewRawImage(tt.img)
			require.Equal(t, tt.mode, raw.Mode)

			got, err := Normalize(raw)
			require.NoError(t, err)

			assert.Equal(t, tt.img.Bounds().Dx(), got.Width())
			assert.Equal(t, tt.img.Bounds().Dy(), got.Height())
			assert.Equal(t, ModeRGB, got.Mode)
			assertOpaque(t, got.Image)

			// colors survive the conversion
			r0, g0, b0, _ := tt.img.At(tt.img.Bounds().Min.X+3, tt.img.Bounds().Min.Y+2).RGBA()
			r1, g1, b1, _ := got.Image.At(3, 2).RGBA()
			assert.Equal(t, [3]uint32{r0 >> 8, g0 >> 8, b0 >> 8}, [3]uint32{r1 >> 8, g1 >> 8, b1 >> 8})
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []image.Image{
		gradientRGBA(1024, 768, 200),
		gradientRGBA(300, 200, 255),
		image.NewGray(image.Rect(0, 0, 700, 90)),
	}

	for _, in := range inputs {
		once, err := Normalize(NewRawImage(in))
		require.NoError(t, err)
		twice, err := Normalize(once)
		require.NoError(t, err)

		assert.Equal(t, once.Image.(*image.NRGBA).Pix, twice.Image.(*image.NRGBA).Pix)
		assert.Equal(t, once.Image.Bounds(), twice.Image.Bounds())
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	raw := NewRawImage(gradientRGBA(900, 600, 90))

	a, err := Normalize(raw)
	require.NoError(t, err)
	b, err := Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, a.Image.(*image.NRGBA).Pix, b.Image.(*image.NRGBA).Pix)
}

func TestNormalize_DoesNotTouchInput(t *testing.T) {
	src := gradientRGBA(20, 20, 10)
	before := append([]uint8(nil), src.Pix...)

	got, err := Normalize(NewRawImage(src))
	require.NoError(t, err)

	assert.Equal(t, before, src.Pix)
	got.Image.(*image.NRGBA).Pix[0] = 99
	assert.Equal(t, before, src.Pix)
}

func TestNormalize_CustomMaxSize(t *testing.T) {
	got, err := Normalizer{MaxSize: 100}.Normalize(NewRawImage(gradientRGBA(400, 200, 255)))
	require.NoError(t, err)
	assert.Equal(t, 100, got.Width())
	assert.Equal(t, 50, got.Height())
}

func TestNormalize_InvalidInput(t *testing.T) {
	var procErr *ProcessingError

	_, err := Normalize(nil)
	assert.True(t, errors.As(err, &procErr))

	_, err = Normalize(&RawImage{Image: image.NewNRGBA(image.Rect(0, 0, 0, 0))})
	assert.True(t, errors.As(err, &procErr))
}

func TestDecode_CorruptData(t *testing.T) {
	_, err := DecodeBytes([]byte("definitely not an image"))

	var procErr *ProcessingError
	require.True(t, errors.As(err, &procErr))
	assert.Equal(t, "decode", procErr.Op)
	assert.Error(t, errors.Unwrap(err))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.png"))

	var procErr *ProcessingError
	require.True(t, errors.As(err, &procErr))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestPrepareFile_ProducesBoundedJPEG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.png")
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, gradientRGBA(1024, 768, 60)))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	encoded, err := Normalizer{}.PrepareFile(path)
	require.NoError(t, err)

	data, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	decoded, err := DecodeBytes(data)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", decoded.Format)
	assert.Equal(t, 512, decoded.Width())
	assert.Equal(t, 384, decoded.Height())
	assert.Equal(t, ModeRGB, decoded.Mode)
}

func TestPrepare_CorruptReader(t *testing.T) {
	_, err := Normalizer{}.Prepare(bytes.NewReader([]byte{0x89, 'P', 'N', 'G', 0, 0}))

	var procErr *ProcessingError
	assert.True(t, errors.As(err, &procErr))
}
