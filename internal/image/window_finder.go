package image

import (
	"fmt"
	"image"
)

// FindGameWindow ищет окно игры на снимке экрана: первая нечерная точка,
// от которой прямоугольник растет по строке и столбцу до черной рамки
func FindGameWindow(img image.Image) (image.Rectangle, error) {
	b := img.Bounds()

	start, found := image.Point{}, false
	for y := b.Min.Y; y < b.Max.Y && !found; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if !isBlack(img, x, y) {
				start, found = image.Pt(x, y), true
				break
			}
		}
	}
	if !found {
		return image.Rectangle{}, fmt.Errorf("окно игры не найдено")
	}

	left := walk(img, start, image.Pt(-1, 0))
	right := walk(img, start, image.Pt(1, 0))
	top := walk(img, start, image.Pt(0, -1))
	bottom := walk(img, start, image.Pt(0, 1))
	return image.Rect(left.X, top.Y, right.X+1, bottom.Y+1), nil
}

// walk последняя нечерная точка в направлении step
func walk(img image.Image, p, step image.Point) image.Point {
	b := img.Bounds()
	for {
		next := p.Add(step)
		if !next.In(b) || isBlack(img, next.X, next.Y) {
			return p
		}
		p = next
	}
}
