package arduino

import (
	"fmt"
	"image"
	"io"
	"sync"
	"time"
)

// Wait for Arduino's response
var waitForArduinoResponse = func(expectedResponse string, port io.Reader) (string, error) {
	return WaitForArduinoResponse(port, expectedResponse)
}

// ProcessAndWait отправляет команду и ждет подтверждения от Arduino
func ProcessAndWait(send func(io.Writer) error, port io.ReadWriter) error {
	if err := send(port); err != nil {
		return err
	}
	if _, err := waitForArduinoResponse(AckResponse, port); err != nil {
		return fmt.Errorf("error waiting for Arduino response: %v", err)
	}
	return nil
}

// Controller сериализует команды к одному порту
type Controller struct {
	mu      sync.Mutex
	port    io.ReadWriter
	keyHold time.Duration
}

// NewController оборачивает открытый порт. keyHold пауза между
// нажатием и отпусканием клавиши.
func NewController(port io.ReadWriter, keyHold time.Duration) *Controller {
	return &Controller{port: port, keyHold: keyHold}
}

// PressKey нажимает и отпускает клавишу
func (c *Controller) PressKey(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ProcessAndWait(func(w io.Writer) error { return SendKeyDownToArduino(w, key) }, c.port); err != nil {
		return err
	}
	if c.keyHold > 0 {
		time.Sleep(c.keyHold)
	}
	return ProcessAndWait(func(w io.Writer) error { return SendKeyUpToArduino(w, key) }, c.port)
}

// ClickCoordinates кликает по абсолютным координатам экрана
func (c *Controller) ClickCoordinates(coordinates image.Point) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return ProcessAndWait(func(w io.Writer) error {
		return SendCoordinatesToArduino(w, coordinates.X, coordinates.Y)
	}, c.port)
}
