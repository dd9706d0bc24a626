package region

import (
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type movingWindow struct {
	origins []image.Point
	calls   int
	err     error
}

func (w *movingWindow) Origin() (image.Point, error) {
	if w.err != nil {
		return image.Point{}, w.err
	}
	p := w.origins[w.calls%len(w.origins)]
	w.calls++
	return p, nil
}

type recordingCapturer struct {
	rects []image.Rectangle
	err   error
}

func (c *recordingCapturer) Capture(r image.Rectangle) (image.Image, error) {
	c.rects = append(c.rects, r)
	if c.err != nil {
		return nil, c.err
	}
	return image.NewRGBA(r), nil
}

type recordingClicker struct{ points []image.Point }

func (c *recordingClicker) Click(p image.Point) error {
	c.points = append(c.points, p)
	return nil
}

type textRecognizer struct {
	lines []string
	err   error
}

func (r textRecognizer) Recognize(image.Image) ([]string, error) { return r.lines, r.err }

func TestScaleResolutions(t *testing.T) {
	count := Regions[ItemCount]
	cases := []struct {
		w, h int
		want image.Rectangle
	}{
		{1920, 1080, image.Rect(580, 130, 640, 160)},
		{2560, 1440, image.Rect(773, 173, 853, 213)},
		{3440, 1440, image.Rect(1039, 173, 1146, 213)},
		{1280, 720, image.Rect(386, 86, 426, 106)},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Scale(count, c.w, c.h), "%dx%d", c.w, c.h)
	}
}

func TestScaleAffixRegionUltrawide(t *testing.T) {
	got := Scale(Regions[AffixList], 3440, 1440)
	assert.Equal(t, image.Rect(1979, 1066, 3233, 1333), got)
}

func TestLocateRereadsWindowOrigin(t *testing.T) {
	window := &movingWindow{origins: []image.Point{{X: 0, Y: 0}, {X: 100, Y: 50}}}
	capturer := &recordingCapturer{}
	m := NewMapper(1920, 1080, window, capturer, &recordingClicker{}, textRecognizer{})

	_, err := m.Capture(ItemCount)
	require.NoError(t, err)
	_, err = m.Capture(ItemCount)
	require.NoError(t, err)

	assert.Equal(t, []image.Rectangle{
		image.Rect(580, 130, 640, 160),
		image.Rect(680, 180, 740, 210),
	}, capturer.rects)
}

func TestClickCenter(t *testing.T) {
	clicker := &recordingClicker{}
	m := NewMapper(2560, 1440, &movingWindow{origins: []image.Point{{X: 10, Y: 20}}}, &recordingCapturer{}, clicker, textRecognizer{})

	require.NoError(t, m.Click(ItemCount))
	assert.Equal(t, []image.Point{{X: 823, Y: 213}}, clicker.points)
}

func TestDetectCount(t *testing.T) {
	window := &movingWindow{origins: []image.Point{{}}}
	m := NewMapper(1920, 1080, window, &recordingCapturer{}, &recordingClicker{}, textRecognizer{lines: []string{"遗物 137/1000"}})
	n, err := m.DetectCount(ItemCount)
	require.NoError(t, err)
	assert.Equal(t, 137, n)

	m = NewMapper(1920, 1080, window, &recordingCapturer{}, &recordingClicker{}, textRecognizer{lines: []string{"遗物"}})
	_, err = m.DetectCount(ItemCount)
	assert.ErrorIs(t, err, ErrInteraction)
}

func TestInteractionErrors(t *testing.T) {
	broken := &movingWindow{err: errors.New("window not found")}
	m := NewMapper(1920, 1080, broken, &recordingCapturer{}, &recordingClicker{}, textRecognizer{})
	_, err := m.Capture(AffixList)
	assert.ErrorIs(t, err, ErrInteraction)
	assert.ErrorIs(t, m.Click(FilterButton), ErrInteraction)

	ok := &movingWindow{origins: []image.Point{{}}}
	m = NewMapper(1920, 1080, ok, &recordingCapturer{err: errors.New("black screen")}, &recordingClicker{}, textRecognizer{})
	_, err = m.Capture(AffixList)
	assert.ErrorIs(t, err, ErrInteraction)

	_, err = m.Scale(Name("missing"))
	assert.ErrorIs(t, err, ErrInteraction)

	m = NewMapper(1920, 1080, ok, &recordingCapturer{}, &recordingClicker{}, textRecognizer{err: errors.New("ocr down")})
	_, err = m.ReadText(FilterTitle)
	assert.ErrorIs(t, err, ErrInteraction)
}

func TestPurchaseButtonsClickOriginalPoints(t *testing.T) {
	clicker := &recordingClicker{}
	m := NewMapper(1920, 1080, &movingWindow{origins: []image.Point{{}}}, &recordingCapturer{}, clicker, textRecognizer{})

	for _, name := range []Name{PurchaseNewNormal, PurchaseOldNormal, PurchaseNewDeepnight, PurchaseOldDeepnight, MerchantMenu} {
		require.NoError(t, m.Click(name), name)
	}
	assert.Equal(t, []image.Point{{X: 145, Y: 890}, {X: 260, Y: 890}, {X: 375, Y: 890}, {X: 490, Y: 890}, {X: 170, Y: 590}}, clicker.points)
}

func TestDefineCurrencyRegion(t *testing.T) {
	t.Cleanup(func() { delete(Regions, Currency) })
	window := &movingWindow{origins: []image.Point{{}}}
	m := NewMapper(1920, 1080, window, &recordingCapturer{}, &recordingClicker{}, textRecognizer{lines: []string{"暗痕 12345"}})

	_, err := m.DetectCount(Currency)
	assert.ErrorIs(t, err, ErrInteraction, "no default coordinates")

	Define(Currency, Region{Left: 1600, Top: 40, Right: 1800, Bottom: 80})
	n, err := m.DetectCount(Currency)
	require.NoError(t, err)
	assert.Equal(t, 12345, n)
}
