package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LogLevel представляет уровень логирования
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

// Event одна запись лога, доставляемая подписчикам (оболочке)
type Event struct {
	Time    time.Time
	Level   LogLevel
	Message string
}

const subscriberBuffer = 256

// LoggerManager управляет логированием в файл, консоль и поток событий
type LoggerManager struct {
	file    *os.File
	logger  *log.Logger
	console bool

	mu          sync.Mutex
	subscribers []chan Event
}

// NewLoggerManager создает новый экземпляр LoggerManager
func NewLoggerManager(logFilePath string) (*LoggerManager, error) {
	// Создаем директорию для логов, если её нет
	logDir := filepath.Dir(logFilePath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("ошибка создания директории для логов: %v", err)
	}

	// Открываем файл для записи (создаем, если не существует)
	file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия файла логов: %v", err)
	}

	return &LoggerManager{
		file:    file,
		logger:  log.New(file, "", log.LstdFlags),
		console: true,
	}, nil
}

// SetConsole включает или выключает дублирование в консоль
func (l *LoggerManager) SetConsole(enabled bool) {
	l.console = enabled
}

// Close закрывает файл логов и все подписки
func (l *LoggerManager) Close() error {
	l.mu.Lock()
	for _, ch := range l.subscribers {
		close(ch)
	}
	l.subscribers = nil
	l.mu.Unlock()
	return l.file.Close()
}

// Subscribe возвращает канал событий лога. Медленный подписчик теряет события,
// запись в лог никогда не блокируется.
func (l *LoggerManager) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBuffer)
	l.mu.Lock()
	l.subscribers = append(l.subscribers, ch)
	l.mu.Unlock()
	return ch
}

// logWithLevel записывает сообщение с указанным уровнем
func (l *LoggerManager) logWithLevel(level LogLevel, format string, args ...interface{}) {
	now := time.Now()
	message := fmt.Sprintf(format, args...)
	logEntry := fmt.Sprintf("[%s] %s: %s", now.Format("2006-01-02 15:04:05"), level, message)

	// Записываем в файл
	l.logger.Println(logEntry)

	// Также выводим в консоль для удобства отладки
	if l.console {
		fmt.Println(logEntry)
	}

	l.publish(Event{Time: now, Level: level, Message: message})
}

func (l *LoggerManager) publish(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ch := range l.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Debug записывает отладочное сообщение
func (l *LoggerManager) Debug(format string, args ...interface{}) {
	l.logWithLevel(DEBUG, format, args...)
}

// Info записывает информационное сообщение
func (l *LoggerManager) Info(format string, args ...interface{}) {
	l.logWithLevel(INFO, format, args...)
}

// Warn записывает предупреждение
func (l *LoggerManager) Warn(format string, args ...interface{}) {
	l.logWithLevel(WARN, format, args...)
}

// Error записывает сообщение об ошибке
func (l *LoggerManager) Error(format string, args ...interface{}) {
	l.logWithLevel(ERROR, format, args...)
}

// LogError записывает ошибку с дополнительной информацией
func (l *LoggerManager) LogError(err error, context string) {
	if err != nil {
		l.Error("%s: %v", context, err)
	}
}
