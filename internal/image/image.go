package image

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// GetPixelColor получает цвет пикселя по координатам; точки вне изображения черные
func GetPixelColor(img image.Image, x int, y int) (int, int, int, error) {
	bounds := img.Bounds()
	if !(image.Point{X: x, Y: y}).In(bounds) {
		return 0, 0, 0, nil
	}

	// Преобразуем значения из диапазона 0-65535 в 0-255
	r, g, b, _ := img.At(x, y).RGBA()
	return int(r >> 8), int(g >> 8), int(b >> 8), nil
}

// isBlack пиксель считается черным, если все каналы ниже 10
func isBlack(img image.Image, x, y int) bool {
	r, g, b, _ := GetPixelColor(img, x, y)
	return r < 10 && g < 10 && b < 10
}

// ImageToBytes конвертирует изображение в байты в формате PNG
func ImageToBytes(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	err := png.Encode(&buf, img)
	if err != nil {
		return nil, fmt.Errorf("ошибка кодирования изображения: %v", err)
	}
	return buf.Bytes(), nil
}

// SaveImage сохраняет изображение, формат определяется по расширению
var SaveImage = func(img image.Image, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("ошибка создания каталога: %v", err)
	}
	if err := imaging.Save(img, filename); err != nil {
		return fmt.Errorf("ошибка сохранения изображения: %v", err)
	}
	return nil
}

// PrepareForOCR переводит изображение в оттенки серого и увеличивает его
func PrepareForOCR(img image.Image, scale float64) image.Image {
	gray := imaging.Grayscale(img)
	if scale <= 1 {
		return gray
	}
	w := int(float64(gray.Bounds().Dx()) * scale)
	return imaging.Resize(gray, w, 0, imaging.Lanczos)
}
