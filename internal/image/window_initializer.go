package image

import (
	"fmt"
	"image"
)

// WindowInitializer определяет положение окна игры на экране. Положение
// перечитывается при каждом вызове Origin.
type WindowInitializer struct {
	topOffset   int
	captureFull func() (image.Image, error)
}

// NewWindowInitializer создает новый экземпляр WindowInitializer.
// topOffset пикселей сверху (панель задач, заголовок) не участвуют в поиске.
func NewWindowInitializer(topOffset int, captureFull func() (image.Image, error)) *WindowInitializer {
	return &WindowInitializer{
		topOffset:   topOffset,
		captureFull: captureFull,
	}
}

// Origin возвращает левый верхний угол окна игры в координатах экрана
func (w *WindowInitializer) Origin() (image.Point, error) {
	img, err := w.captureFull()
	if err != nil {
		return image.Point{}, fmt.Errorf("ошибка захвата экрана: %v", err)
	}

	b := img.Bounds()
	search := image.Rect(b.Min.X, b.Min.Y+w.topOffset, b.Max.X, b.Max.Y)
	sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	})
	if ok && w.topOffset > 0 {
		img = sub.SubImage(search)
	}

	window, err := FindGameWindow(img)
	if err != nil {
		return image.Point{}, fmt.Errorf("окно не найдено: %v", err)
	}
	return window.Min, nil
}

// FixedOrigin положение окна, заданное в конфигурации
type FixedOrigin image.Point

// Origin возвращает заданную точку
func (f FixedOrigin) Origin() (image.Point, error) {
	return image.Point(f), nil
}
