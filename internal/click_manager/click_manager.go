package click_manager

import (
	"image"
	"time"

	"nrrelic/internal/logger"
)

// Device устройство ввода (Arduino)
type Device interface {
	PressKey(key string) error
	ClickCoordinates(coordinates image.Point) error
}

// Delays паузы после действий
type Delays struct {
	AfterKey   time.Duration
	AfterClick time.Duration
}

// ClickManager управляет нажатиями и кликами, выдерживая паузы
type ClickManager struct {
	device Device
	delays Delays
	logger *logger.LoggerManager
}

// sleep подменяется в тестах
var sleep = time.Sleep

// NewClickManager создает новый экземпляр ClickManager
func NewClickManager(device Device, delays Delays, loggerManager *logger.LoggerManager) *ClickManager {
	return &ClickManager{device: device, delays: delays, logger: loggerManager}
}

// PressKey нажимает клавишу и ждет паузу после нажатия
func (m *ClickManager) PressKey(key string) error {
	m.logger.Debug("⌨️ Клавиша: %s", key)
	if err := m.device.PressKey(key); err != nil {
		m.logger.LogError(err, "Ошибка нажатия клавиши "+key)
		return err
	}
	sleep(m.delays.AfterKey)
	return nil
}

// Click выполняет клик по абсолютным координатам
func (m *ClickManager) Click(coordinate image.Point) error {
	m.logger.Debug("🖱️ Клик: (%d, %d)", coordinate.X, coordinate.Y)
	if err := m.device.ClickCoordinates(coordinate); err != nil {
		m.logger.LogError(err, "Ошибка клика")
		return err
	}
	sleep(m.delays.AfterClick)
	return nil
}

// Wait пауза между шагами сценария
func (m *ClickManager) Wait(d time.Duration) {
	sleep(d)
}
