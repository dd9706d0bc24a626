package cleaner

import (
	"time"

	"nrrelic/internal/affix"
	"nrrelic/internal/itemstate"
	"nrrelic/internal/preset"
)

// SessionInfo начало сессии
type SessionInfo struct {
	SessionID string
	Options   Options
	Target    int
	StartedAt time.Time
}

// ItemEvent результат обработки одного предмета
type ItemEvent struct {
	SessionID string
	Index     int
	State     itemstate.State
	Skipped   bool
	Duplicate bool
	Affixes   []affix.Resolved
	Match     preset.MatchResult
	Action    Action
	Kind      Kind
	Err       error
	Duration  time.Duration
}

// Summary итог сессии
type Summary struct {
	SessionID string
	Stats     Stats
	Target    int
	// Exhausted обработано заданное число предметов
	Exhausted bool
	// Confirmed продажа подтверждена автоматически
	Confirmed bool
	// ManualCompletion в игре остались помеченные предметы
	ManualCompletion bool
	Err              error
	Kind             Kind
	Duration         time.Duration
}

// Observer получает события сессии. Вызовы идут из рабочей горутины
// и не должны блокироваться надолго.
type Observer interface {
	SessionStarted(info SessionInfo)
	ItemProcessed(ev ItemEvent)
	SessionFinished(summary Summary)
}
