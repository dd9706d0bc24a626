package interrupt

import (
	"context"
	"fmt"
	"sync/atomic"

	"nrrelic/internal/logger"

	"github.com/moutend/go-hook/pkg/keyboard"
	"github.com/moutend/go-hook/pkg/types"
)

// InterruptManager управляет горячими клавишами: Shift+Enter запускает
// очистку, F11 останавливает ее
type InterruptManager struct {
	scriptInterruptChan chan bool
	scriptStartChan     chan bool
	isScriptRunning     atomic.Bool
	shiftPressed        bool
	loggerManager       *logger.LoggerManager
}

// NewInterruptManager создает новый менеджер прерываний
func NewInterruptManager(loggerManager *logger.LoggerManager) *InterruptManager {
	return &InterruptManager{
		scriptInterruptChan: make(chan bool, 1),
		scriptStartChan:     make(chan bool, 1),
		loggerManager:       loggerManager,
	}
}

// GetScriptInterruptChan возвращает канал для прерывания скрипта
func (im *InterruptManager) GetScriptInterruptChan() <-chan bool {
	return im.scriptInterruptChan
}

// GetScriptStartChan возвращает канал для запуска скрипта
func (im *InterruptManager) GetScriptStartChan() <-chan bool {
	return im.scriptStartChan
}

// SetScriptRunning устанавливает состояние выполнения скрипта
func (im *InterruptManager) SetScriptRunning(running bool) {
	im.isScriptRunning.Store(running)
}

// IsScriptRunning возвращает состояние выполнения скрипта
func (im *InterruptManager) IsScriptRunning() bool {
	return im.isScriptRunning.Load()
}

// installHook и uninstallHook подменяются в тестах
var installHook = func(events chan<- types.KeyboardEvent) error {
	return keyboard.Install(nil, events)
}

var uninstallHook = func() error {
	return keyboard.Uninstall()
}

// Run слушает клавиатуру до отмены ctx
func (im *InterruptManager) Run(ctx context.Context) error {
	eventChan := make(chan types.KeyboardEvent, 100)
	if err := installHook(eventChan); err != nil {
		return fmt.Errorf("ошибка установки хука клавиатуры: %v", err)
	}
	defer uninstallHook()
	im.loggerManager.Info("⌨️ Горячие клавиши: Shift+Enter старт, F11 стоп")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-eventChan:
			if !ok {
				return nil
			}
			im.HandleEvent(event)
		}
	}
}

// HandleEvent обрабатывает одно событие клавиатуры. Повторные сигналы
// схлопываются, если предыдущий еще не прочитан.
func (im *InterruptManager) HandleEvent(event types.KeyboardEvent) {
	isShift := event.VKCode == types.VK_LSHIFT || event.VKCode == types.VK_RSHIFT || event.VKCode == types.VK_SHIFT
	switch {
	case event.Message == types.WM_KEYDOWN && isShift:
		im.shiftPressed = true
	case event.Message == types.WM_KEYUP && isShift:
		im.shiftPressed = false
	case event.Message == types.WM_KEYDOWN && event.VKCode == types.VK_RETURN && im.shiftPressed:
		if !im.IsScriptRunning() {
			signal(im.scriptStartChan)
		}
	case event.Message == types.WM_KEYDOWN && event.VKCode == types.VK_F11:
		// F11 прерывает только запущенную очистку
		if im.IsScriptRunning() {
			im.loggerManager.Info("🛑 Нажата F11, останавливаем очистку")
			signal(im.scriptInterruptChan)
		}
	}
}

func signal(ch chan bool) {
	select {
	case ch <- true:
	default:
	}
}
