package arduino

import (
	"bytes"
	"errors"
	"image"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePort отвечает "received" на каждую строку команды
type fakePort struct {
	written bytes.Buffer
	replies bytes.Buffer
	reply   string
}

func newFakePort() *fakePort { return &fakePort{reply: AckResponse} }

func (p *fakePort) Write(b []byte) (int, error) {
	p.written.Write(b)
	for i := 0; i < bytes.Count(b, []byte("\n")); i++ {
		p.replies.WriteString(p.reply + "\r\n")
	}
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	if p.replies.Len() == 0 {
		return 0, io.EOF
	}
	// по одному байту, чтобы проверить склейку ответа
	return p.replies.Read(b[:1])
}

func TestPressKeySendsDownAndUp(t *testing.T) {
	port := newFakePort()
	c := NewController(port, 0)

	require.NoError(t, c.PressKey("f"))
	assert.Equal(t, "key_down:f\nkey_up:f\n", port.written.String())
}

func TestClickCoordinates(t *testing.T) {
	port := newFakePort()
	c := NewController(port, 0)

	require.NoError(t, c.ClickCoordinates(image.Pt(813, 193)))
	assert.Equal(t, "click:813,193\n", port.written.String())
}

func TestUnexpectedResponse(t *testing.T) {
	port := newFakePort()
	port.reply = "busy"
	c := NewController(port, 0)

	err := c.PressKey("right")
	assert.ErrorContains(t, err, "unexpected response: 'busy'")
	assert.Equal(t, "key_down:right\n", port.written.String(), "key_up is not sent after a failed ack")
}

func TestWaitForArduinoResponseReadError(t *testing.T) {
	_, err := WaitForArduinoResponse(strings.NewReader("rece"), AckResponse)
	assert.Error(t, err)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("port closed") }

func TestSendErrors(t *testing.T) {
	assert.ErrorContains(t, SendKeyDownToArduino(failingWriter{}, "3"), "port closed")
	assert.ErrorContains(t, SendCoordinatesToArduino(failingWriter{}, 1, 2), "port closed")
}

func TestProcessAndWaitUsesResponseSeam(t *testing.T) {
	orig := waitForArduinoResponse
	t.Cleanup(func() { waitForArduinoResponse = orig })

	var expected []string
	waitForArduinoResponse = func(expectedResponse string, port io.Reader) (string, error) {
		expected = append(expected, expectedResponse)
		return expectedResponse, nil
	}

	port := newFakePort()
	c := NewController(port, 0)
	require.NoError(t, c.PressKey("2"))
	assert.Equal(t, []string{AckResponse, AckResponse}, expected)

	waitForArduinoResponse = func(string, io.Reader) (string, error) { return "", errors.New("timeout") }
	err := ProcessAndWait(func(w io.Writer) error { return SendKeyUpToArduino(w, "2") }, port)
	assert.ErrorContains(t, err, "error waiting for Arduino response: timeout")
}
