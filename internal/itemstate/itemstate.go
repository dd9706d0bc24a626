package itemstate

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// State одно из пяти взаимоисключающих состояний предмета
type State int

const (
	Light State = iota
	DarkFavorited
	DarkEquipped
	DarkFavoritedEquipped
	DarkOfficial
)

// All перечисляет состояния в порядке объявления
var All = []State{Light, DarkFavorited, DarkEquipped, DarkFavoritedEquipped, DarkOfficial}

func (s State) String() string {
	switch s {
	case Light:
		return "Light"
	case DarkFavorited:
		return "DarkFavorited"
	case DarkEquipped:
		return "DarkEquipped"
	case DarkFavoritedEquipped:
		return "DarkFavoritedEquipped"
	case DarkOfficial:
		return "DarkOfficial"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Code короткий код состояния для логов: Light, F, E, FE, O
func (s State) Code() string {
	switch s {
	case DarkFavorited:
		return "F"
	case DarkEquipped:
		return "E"
	case DarkFavoritedEquipped:
		return "FE"
	case DarkOfficial:
		return "O"
	}
	return "Light"
}

// Signals булевы признаки, найденные на кадре предмета
type Signals struct {
	Favorited bool
	Equipped  bool
	Official  bool
}

// Classify тотальная функция признаков в состояние; официальная метка
// перекрывает оба флага
func Classify(s Signals) State {
	switch {
	case s.Official:
		return DarkOfficial
	case s.Favorited && s.Equipped:
		return DarkFavoritedEquipped
	case s.Favorited:
		return DarkFavorited
	case s.Equipped:
		return DarkEquipped
	}
	return Light
}

// Locator ищет шаблон на изображении
type Locator interface {
	Locate(img, tpl image.Image) (image.Rectangle, float64, bool)
}

// Templates иконки состояний. Official может быть nil, тогда официальный
// предмет определяется по яркости центра кадра.
type Templates struct {
	Favorited image.Image
	Equipped  image.Image
	Official  image.Image
}

// LoadTemplates загружает иконки из файлов; пустой путь official допустим
func LoadTemplates(favorited, equipped, official string) (Templates, error) {
	var t Templates
	var err error
	if t.Favorited, err = imaging.Open(favorited); err != nil {
		return t, fmt.Errorf("ошибка загрузки шаблона избранного: %v", err)
	}
	if t.Equipped, err = imaging.Open(equipped); err != nil {
		return t, fmt.Errorf("ошибка загрузки шаблона экипировки: %v", err)
	}
	if official != "" {
		if t.Official, err = imaging.Open(official); err != nil {
			return t, fmt.Errorf("ошибка загрузки официального шаблона: %v", err)
		}
	}
	return t, nil
}

const (
	// доля кадра, в углах которой ищутся иконки
	iconZoneRatio = 0.35
	// доля центральной области для оценки яркости
	centerRatio = 0.65
	// порог яркости (0..255) светлого предмета
	brightnessThreshold = 50
	// ширина рамки курсора в пикселях при 1920x1080, под нее нарисованы шаблоны
	baseCursorWidth = 92
	// яркость рамки курсора
	cursorBrightness = 220
	cursorPadding    = 2
)

// Detector вычисляет признаки по кадру предмета
type Detector struct {
	locator   Locator
	templates Templates
	threshold float64
}

// NewDetector создает новый экземпляр Detector
func NewDetector(locator Locator, templates Templates, threshold float64) *Detector {
	return &Detector{locator: locator, templates: templates, threshold: threshold}
}

// Detect находит курсор в области сетки и классифицирует выбранный предмет.
// Без курсора предмет считается светлым.
func (d *Detector) Detect(grid image.Image) State {
	cursor, ok := FindCursor(grid)
	if !ok {
		return Light
	}
	frame := imaging.Crop(grid, cursor.Inset(cursorPadding))
	return d.DetectFrame(frame, float64(cursor.Dx())/baseCursorWidth)
}

// DetectFrame классифицирует уже вырезанный кадр предмета
func (d *Detector) DetectFrame(frame image.Image, scale float64) State {
	return Classify(d.Signals(frame, scale))
}

// Signals ищет замок избранного в правом верхнем углу, кубок экипировки в
// левом верхнем и официальную метку на всем кадре
func (d *Detector) Signals(frame image.Image, scale float64) Signals {
	b := frame.Bounds()
	zw := int(float64(b.Dx()) * iconZoneRatio)
	zh := int(float64(b.Dy()) * iconZoneRatio)

	topLeft := imaging.Crop(frame, image.Rect(b.Min.X, b.Min.Y, b.Min.X+zw, b.Min.Y+zh))
	topRight := imaging.Crop(frame, image.Rect(b.Max.X-zw, b.Min.Y, b.Max.X, b.Min.Y+zh))

	s := Signals{
		Equipped:  d.found(topLeft, d.templates.Equipped, scale),
		Favorited: d.found(topRight, d.templates.Favorited, scale),
	}
	if d.templates.Official != nil {
		s.Official = d.found(frame, d.templates.Official, scale)
	} else {
		s.Official = !s.Equipped && !s.Favorited && CenterBrightness(frame) <= brightnessThreshold
	}
	return s
}

func (d *Detector) found(zone, tpl image.Image, scale float64) bool {
	if tpl == nil {
		return false
	}
	if math.Abs(scale-1) > 0.02 && scale > 0 {
		w := int(float64(tpl.Bounds().Dx()) * scale)
		if w < 1 {
			return false
		}
		tpl = imaging.Resize(tpl, w, 0, imaging.Linear)
	}
	_, confidence, ok := d.locator.Locate(zone, tpl)
	return ok && confidence >= d.threshold
}

// Площадь рамки курсора в пикселях: от 1920x1080 до 4K
const (
	minCursorArea = 2000
	maxCursorArea = 40000
	// доля ярких пикселей в рамке; залитые иконки ее превышают
	maxCursorFill = 0.5
)

// FindCursor ищет рамку курсора среди связных областей самых ярких
// пикселей: почти квадратная полая рамка подходящей площади. Из
// подходящих берется самая большая, остальные блики игнорируются.
func FindCursor(grid image.Image) (image.Rectangle, bool) {
	b := grid.Bounds()
	w, h := b.Dx(), b.Dy()
	bright := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := grid.At(b.Min.X+x, b.Min.Y+y).RGBA()
			bright[y*w+x] = r>>8 >= cursorBrightness && g>>8 >= cursorBrightness && bl>>8 >= cursorBrightness
		}
	}

	seen := make([]bool, w*h)
	var best image.Rectangle
	found := false
	var stack []int
	for i := range bright {
		if !bright[i] || seen[i] {
			continue
		}
		box, pixels := image.Rect(i%w, i/w, i%w+1, i/w+1), 0
		seen[i] = true
		stack = append(stack[:0], i)
		for len(stack) > 0 {
			j := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			pixels++
			x, y := j%w, j/w
			box = box.Union(image.Rect(x, y, x+1, y+1))
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					if k := ny*w + nx; bright[k] && !seen[k] {
						seen[k] = true
						stack = append(stack, k)
					}
				}
			}
		}
		if !isCursorShape(box, pixels) {
			continue
		}
		if !found || box.Dx()*box.Dy() > best.Dx()*best.Dy() {
			best, found = box, true
		}
	}
	if !found {
		return image.Rectangle{}, false
	}
	return best.Add(b.Min), true
}

func isCursorShape(box image.Rectangle, pixels int) bool {
	area := box.Dx() * box.Dy()
	if area < minCursorArea || area > maxCursorArea {
		return false
	}
	aspect := float64(box.Dx()) / float64(box.Dy())
	if aspect < 0.85 || aspect > 1.15 {
		return false
	}
	return float64(pixels) <= maxCursorFill*float64(area)
}

// CenterBrightness средняя яркость (V из HSV) центральной области кадра
func CenterBrightness(frame image.Image) float64 {
	b := frame.Bounds()
	off := (1 - centerRatio) / 2
	rect := image.Rect(
		b.Min.X+int(float64(b.Dx())*off),
		b.Min.Y+int(float64(b.Dy())*off),
		b.Min.X+int(float64(b.Dx())*(off+centerRatio)),
		b.Min.Y+int(float64(b.Dy())*(off+centerRatio)),
	)
	if rect.Empty() {
		return 0
	}

	var sum float64
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			r, g, bl, _ := frame.At(x, y).RGBA()
			v := r
			if g > v {
				v = g
			}
			if bl > v {
				v = bl
			}
			sum += float64(v >> 8)
		}
	}
	return sum / float64(rect.Dx()*rect.Dy())
}
