package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesFileAndPublishes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	l, err := NewLoggerManager(path)
	require.NoError(t, err)
	l.SetConsole(false)

	events := l.Subscribe()
	l.Warn("осталось %d предметов", 3)

	ev := <-events
	assert.Equal(t, WARN, ev.Level)
	assert.Equal(t, "осталось 3 предметов", ev.Message)

	require.NoError(t, l.Close())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "WARN: осталось 3 предметов")

	_, open := <-events
	assert.False(t, open, "subscription must be closed with the logger")
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	l, err := NewLoggerManager(filepath.Join(t.TempDir(), "app.log"))
	require.NoError(t, err)
	l.SetConsole(false)
	defer l.Close()

	_ = l.Subscribe()
	for i := 0; i < subscriberBuffer*2; i++ {
		l.Debug("event %d", i)
	}
}

func TestLogErrorIgnoresNil(t *testing.T) {
	l, err := NewLoggerManager(filepath.Join(t.TempDir(), "app.log"))
	require.NoError(t, err)
	l.SetConsole(false)
	defer l.Close()

	events := l.Subscribe()
	l.LogError(nil, "ничего")
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}
