package image

import (
	"errors"
	"image"
	"image/color"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func screenWithWindow(w, h int, win image.Rectangle) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{0, 0, 0, 255}
			if (image.Point{X: x, Y: y}).In(win) {
				c = color.RGBA{100, 90, 80, 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func TestFindGameWindow(t *testing.T) {
	img := screenWithWindow(100, 80, image.Rect(20, 10, 70, 50))
	win, err := FindGameWindow(img)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(20, 10, 70, 50), win)
	assert.Equal(t, 50, win.Dx())

	_, err = FindGameWindow(image.NewRGBA(image.Rect(0, 0, 10, 10)))
	assert.Error(t, err)
}

func TestWindowInitializerOrigin(t *testing.T) {
	img := screenWithWindow(100, 80, image.Rect(20, 30, 70, 60))
	calls := 0
	wi := NewWindowInitializer(8, func() (image.Image, error) {
		calls++
		return img, nil
	})

	p, err := wi.Origin()
	require.NoError(t, err)
	assert.Equal(t, image.Pt(20, 30), p)

	_, _ = wi.Origin()
	assert.Equal(t, 2, calls, "origin is re-read on every call")

	failing := NewWindowInitializer(0, func() (image.Image, error) { return nil, errors.New("нет экрана") })
	_, err = failing.Origin()
	assert.Error(t, err)

	fixed, err := FixedOrigin(image.Pt(3, 4)).Origin()
	require.NoError(t, err)
	assert.Equal(t, image.Pt(3, 4), fixed)
}

func TestGetPixelColorOutOfBounds(t *testing.T) {
	img := screenWithWindow(4, 4, image.Rect(0, 0, 4, 4))
	r, g, b, err := GetPixelColor(img, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{100, 90, 80}, []int{r, g, b})

	r, g, b, _ = GetPixelColor(img, 10, 10)
	assert.Equal(t, []int{0, 0, 0}, []int{r, g, b})
}

func noise(w, h int, seed int64) *image.Gray {
	rnd := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rnd.Intn(256))
	}
	return img
}

func TestTemplateMatcherFindsPatch(t *testing.T) {
	src := noise(40, 30, 7)
	want := image.Rect(17, 9, 25, 15)
	tpl := imaging.Crop(src, want)

	m := NewTemplateMatcher(1)
	got, score, ok := m.Locate(src, tpl)
	require.True(t, ok)
	assert.Equal(t, want, got)
	assert.InDelta(t, 1.0, score, 1e-6)

	other := noise(8, 6, 99)
	_, score, ok = m.Locate(src, other)
	require.True(t, ok)
	assert.Less(t, score, 0.7)
}

func TestTemplateMatcherRejectsOversizedTemplate(t *testing.T) {
	m := NewTemplateMatcher(1)
	_, _, ok := m.Locate(noise(5, 5, 1), noise(6, 6, 2))
	assert.False(t, ok)
}

func TestTemplateMatcherHonoursSubImageOrigin(t *testing.T) {
	src := noise(40, 30, 3)
	zone := src.SubImage(image.Rect(10, 5, 40, 30))
	want := image.Rect(20, 12, 26, 18)
	tpl := imaging.Crop(src, want)

	got, _, ok := NewTemplateMatcher(1).Locate(zone, tpl)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestSaveImageAndBytes(t *testing.T) {
	img := noise(4, 4, 5)
	data, err := ImageToBytes(img)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	path := filepath.Join(t.TempDir(), "debug", "frame.png")
	require.NoError(t, SaveImage(img, path))
	back, err := imaging.Open(path)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), back.Bounds())
}

func TestPrepareForOCR(t *testing.T) {
	out := PrepareForOCR(noise(10, 4, 1), 2)
	assert.Equal(t, 20, out.Bounds().Dx())
	assert.Equal(t, 8, out.Bounds().Dy())
}
