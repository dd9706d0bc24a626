package arduino

import (
	"bytes"
	"fmt"
	"io"

	"github.com/tarm/serial"
)

// Ответ прошивки на каждую выполненную команду
const AckResponse = "received"

// InitializePort открывает последовательный порт Arduino
func InitializePort(name string, baud int) (*serial.Port, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:     name,
		Baud:     baud,
		Parity:   serial.ParityNone,
		StopBits: serial.Stop1,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия порта %s: %v", name, err)
	}
	return port, nil
}

func write(port io.Writer, message string) error {
	if _, err := port.Write([]byte(message)); err != nil {
		return fmt.Errorf("error writing to Arduino: %v", err)
	}
	return nil
}

func SendKeyDownToArduino(port io.Writer, key string) error {
	return write(port, fmt.Sprintf("key_down:%s\n", key))
}

func SendKeyUpToArduino(port io.Writer, key string) error {
	return write(port, fmt.Sprintf("key_up:%s\n", key))
}

func SendCoordinatesToArduino(port io.Writer, x, y int) error {
	return write(port, fmt.Sprintf("click:%d,%d\n", x, y))
}

// WaitForArduinoResponse читает одну строку ответа и сверяет ее с ожидаемой
func WaitForArduinoResponse(port io.Reader, expectedResponse string) (string, error) {
	var response []byte
	buf := make([]byte, 128)
	for {
		n, err := port.Read(buf)
		if err != nil {
			return "", fmt.Errorf("error reading from Arduino: %v", err)
		}
		response = append(response, buf[:n]...)

		if i := bytes.IndexByte(response, '\n'); i >= 0 {
			line := string(bytes.TrimSpace(response[:i]))
			if line == expectedResponse {
				return line, nil
			}
			return "", fmt.Errorf("unexpected response: '%s'", line)
		}
	}
}
