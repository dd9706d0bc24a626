package screenshot

import (
	"fmt"
	"image"
	"path/filepath"
	"time"

	"github.com/kbinani/screenshot"

	imgutil "nrrelic/internal/image"
	"nrrelic/internal/logger"
)

// captureRect и displayBounds подменяются в тестах
var captureRect = func(r image.Rectangle) (image.Image, error) {
	return screenshot.CaptureRect(r)
}

var displayBounds = func() image.Rectangle {
	return screenshot.GetDisplayBounds(0)
}

// ScreenshotManager захват экрана с сохранением отладочных снимков
type ScreenshotManager struct {
	logger   *logger.LoggerManager
	debugDir string
	saveAll  bool
}

// NewScreenshotManager создает менеджер. Если saveAll включен, каждый
// снимок дополнительно сохраняется в debugDir.
func NewScreenshotManager(l *logger.LoggerManager, debugDir string, saveAll bool) *ScreenshotManager {
	return &ScreenshotManager{logger: l, debugDir: debugDir, saveAll: saveAll}
}

// Capture захватывает прямоугольник экрана в абсолютных координатах
func (m *ScreenshotManager) Capture(r image.Rectangle) (image.Image, error) {
	if r.Empty() {
		return nil, fmt.Errorf("пустая область захвата: %v", r)
	}
	img, err := captureRect(r)
	if err != nil {
		return nil, fmt.Errorf("ошибка захвата экрана %v: %v", r, err)
	}
	if m.saveAll {
		m.SaveDebug(img, fmt.Sprintf("capture_%dx%d", r.Dx(), r.Dy()))
	}
	return img, nil
}

// CaptureFullScreen захватывает весь основной монитор
func (m *ScreenshotManager) CaptureFullScreen() (image.Image, error) {
	bounds := displayBounds()
	img, err := captureRect(bounds)
	if err != nil {
		return nil, fmt.Errorf("ошибка захвата всего экрана: %v", err)
	}
	return img, nil
}

// SaveDebug сохраняет снимок в каталог отладки; ошибки только логируются
func (m *ScreenshotManager) SaveDebug(img image.Image, prefix string) string {
	if m.debugDir == "" || img == nil {
		return ""
	}
	path := filepath.Join(m.debugDir, fmt.Sprintf("%s_%s.png", prefix, time.Now().Format("20060102_150405.000")))
	if err := imgutil.SaveImage(img, path); err != nil {
		m.logger.LogError(err, "Ошибка сохранения отладочного снимка")
		return ""
	}
	m.logger.Debug("📸 Снимок сохранен: %s", path)
	return path
}
