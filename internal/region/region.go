package region

import (
	"errors"
	"fmt"
	"image"
	"regexp"
	"strconv"
	"strings"
)

// Базовое разрешение, в котором заданы все области
const (
	BaseWidth  = 1920
	BaseHeight = 1080
)

// ErrInteraction область недоступна для захвата или клика
var ErrInteraction = errors.New("interaction failure")

// Name имя логической области
type Name string

const (
	ItemFrame       Name = "item_frame"
	AffixList       Name = "affix_list"
	ItemCount       Name = "item_count"
	FilterTitle     Name = "filter_title"
	FilterButton    Name = "filter_button"
	FilterNormal    Name = "filter_normal"
	FilterDeepnight Name = "filter_deepnight"

	// экран торговца
	MerchantName         Name = "merchant_name"
	MerchantMenu         Name = "merchant_menu"
	RelicIcon            Name = "relic_icon"
	PurchaseNewNormal    Name = "purchase_new_normal"
	PurchaseOldNormal    Name = "purchase_old_normal"
	PurchaseNewDeepnight Name = "purchase_new_deepnight"
	PurchaseOldDeepnight Name = "purchase_old_deepnight"
	// Currency счетчик валюты; координат по умолчанию нет, задается в конфигурации
	Currency Name = "currency"
)

// Region прямоугольник в базовых координатах 1920x1080
type Region struct {
	Left, Top, Right, Bottom int
}

// Regions таблица областей экрана реликвий
var Regions = map[Name]Region{
	ItemFrame:       {Left: 883, Top: 205, Right: 1843, Bottom: 734},
	AffixList:       {Left: 1105, Top: 800, Right: 1805, Bottom: 1000},
	ItemCount:       {Left: 580, Top: 130, Right: 640, Bottom: 160},
	FilterTitle:     {Left: 860, Top: 110, Right: 1060, Bottom: 160},
	FilterButton:    {Left: 1690, Top: 130, Right: 1740, Bottom: 170},
	FilterNormal:    {Left: 700, Top: 300, Right: 900, Bottom: 340},
	FilterDeepnight: {Left: 700, Top: 360, Right: 900, Bottom: 400},

	MerchantName:         {Left: 135, Top: 40, Right: 330, Bottom: 80},
	MerchantMenu:         {Left: 150, Top: 570, Right: 190, Bottom: 610},
	RelicIcon:            {Left: 95, Top: 845, Right: 185, Bottom: 930},
	PurchaseNewNormal:    {Left: 125, Top: 870, Right: 165, Bottom: 910},
	PurchaseOldNormal:    {Left: 240, Top: 870, Right: 280, Bottom: 910},
	PurchaseNewDeepnight: {Left: 355, Top: 870, Right: 395, Bottom: 910},
	PurchaseOldDeepnight: {Left: 470, Top: 870, Right: 510, Bottom: 910},
}

// Define задает или переопределяет область
func Define(name Name, r Region) {
	Regions[name] = r
}

// Scale переводит область в разрешение width x height. Коэффициенты по осям
// независимы, дробная часть отбрасывается.
func Scale(r Region, width, height int) image.Rectangle {
	return image.Rect(
		r.Left*width/BaseWidth,
		r.Top*height/BaseHeight,
		r.Right*width/BaseWidth,
		r.Bottom*height/BaseHeight,
	)
}

// WindowLocator текущее положение окна игры
type WindowLocator interface {
	Origin() (image.Point, error)
}

// Capturer захват прямоугольника экрана
type Capturer interface {
	Capture(r image.Rectangle) (image.Image, error)
}

// Clicker клик по точке экрана
type Clicker interface {
	Click(p image.Point) error
}

// Recognizer распознавание текста
type Recognizer interface {
	Recognize(img image.Image) ([]string, error)
}

// Mapper переводит логические области в физические координаты
type Mapper struct {
	width, height int
	window        WindowLocator
	capturer      Capturer
	clicker       Clicker
	recognizer    Recognizer
}

// NewMapper создает маппер для разрешения игры width x height
func NewMapper(width, height int, window WindowLocator, capturer Capturer, clicker Clicker, recognizer Recognizer) *Mapper {
	return &Mapper{
		width:      width,
		height:     height,
		window:     window,
		capturer:   capturer,
		clicker:    clicker,
		recognizer: recognizer,
	}
}

// Resolution разрешение игры
func (m *Mapper) Resolution() (int, int) {
	return m.width, m.height
}

// Scale область в координатах окна
func (m *Mapper) Scale(name Name) (image.Rectangle, error) {
	r, ok := Regions[name]
	if !ok {
		return image.Rectangle{}, fmt.Errorf("%w: неизвестная область %q", ErrInteraction, name)
	}
	return Scale(r, m.width, m.height), nil
}

// Locate область в координатах экрана. Положение окна перечитывается
// при каждом вызове.
func (m *Mapper) Locate(name Name) (image.Rectangle, error) {
	rect, err := m.Scale(name)
	if err != nil {
		return image.Rectangle{}, err
	}
	origin, err := m.window.Origin()
	if err != nil {
		return image.Rectangle{}, fmt.Errorf("%w: положение окна: %v", ErrInteraction, err)
	}
	return rect.Add(origin), nil
}

// Capture снимок области
func (m *Mapper) Capture(name Name) (image.Image, error) {
	rect, err := m.Locate(name)
	if err != nil {
		return nil, err
	}
	img, err := m.capturer.Capture(rect)
	if err != nil {
		return nil, fmt.Errorf("%w: захват %s: %v", ErrInteraction, name, err)
	}
	return img, nil
}

// Click клик по центру области
func (m *Mapper) Click(name Name) error {
	rect, err := m.Locate(name)
	if err != nil {
		return err
	}
	center := image.Pt((rect.Min.X+rect.Max.X)/2, (rect.Min.Y+rect.Max.Y)/2)
	if err := m.clicker.Click(center); err != nil {
		return fmt.Errorf("%w: клик %s: %v", ErrInteraction, name, err)
	}
	return nil
}

// ReadText распознанные строки области
func (m *Mapper) ReadText(name Name) ([]string, error) {
	img, err := m.Capture(name)
	if err != nil {
		return nil, err
	}
	lines, err := m.recognizer.Recognize(img)
	if err != nil {
		return nil, fmt.Errorf("%w: распознавание %s: %v", ErrInteraction, name, err)
	}
	return lines, nil
}

var firstNumber = regexp.MustCompile(`\d+`)

// DetectCount первое целое число в тексте области
func (m *Mapper) DetectCount(name Name) (int, error) {
	lines, err := m.ReadText(name)
	if err != nil {
		return 0, err
	}
	text := strings.Join(lines, " ")
	digits := firstNumber.FindString(text)
	if digits == "" {
		return 0, fmt.Errorf("%w: число не найдено в %q", ErrInteraction, text)
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInteraction, err)
	}
	return n, nil
}
