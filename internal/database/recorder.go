package database

import (
	"context"
	"strings"
	"time"

	"nrrelic/internal/cleaner"
)

const writeTimeout = 5 * time.Second

// Recorder сохраняет сессии и решения по предметам. Реализует cleaner.Observer.
type Recorder struct {
	*DatabaseManager
}

// NewRecorder создает наблюдателя поверх менеджера БД
func NewRecorder(m *DatabaseManager) *Recorder {
	return &Recorder{DatabaseManager: m}
}

// SessionStarted запись о новой сессии. Выполняется синхронно, чтобы
// итоговый UPDATE всегда шел после INSERT.
func (r *Recorder) SessionStarted(info cleaner.SessionInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO cleaning_sessions (id, mode, cleaning_mode, target, started_at) VALUES (?, ?, ?, ?, ?)`,
		info.SessionID, string(info.Options.Mode), string(info.Options.Cleaning), info.Target, info.StartedAt)
	if err != nil {
		r.logger.LogError(err, "Ошибка сохранения сессии")
		return
	}
	r.logger.Info("💾 Сессия %s записана в БД", info.SessionID)
}

// ItemProcessed запись решения по предмету
func (r *Recorder) ItemProcessed(ev cleaner.ItemEvent) {
	row := DecisionRow(ev)
	r.async("решение", func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO item_decisions (session_id, item_index, state, affixes, qualified, reason, action, error_kind, duration_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			row.SessionID, row.Index, row.State, row.Affixes, row.Qualified, row.Reason, row.Action, row.ErrorKind, row.DurationMS)
		return err
	})
}

// SessionFinished итоговые счетчики сессии
func (r *Recorder) SessionFinished(s cleaner.Summary) {
	var errText string
	if s.Err != nil {
		errText = s.Err.Error()
	}
	st := s.Stats
	r.async("итог сессии", func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx,
			`UPDATE cleaning_sessions SET total_detected = ?, qualified = ?, unqualified = ?, skipped = ?, sold = ?,
			 favorited = ?, unfavorited = ?, pending = ?, confirmed = ?, error_kind = ?, error_text = ?, finished_at = NOW()
			 WHERE id = ?`,
			st.TotalDetected, st.Qualified, st.Unqualified, st.Skipped, st.Sold,
			st.Favorited, st.Unfavorited, st.Pending, s.Confirmed, string(s.Kind), errText, s.SessionID)
		return err
	})
}

// Decision строка таблицы item_decisions
type Decision struct {
	SessionID  string
	Index      int
	State      string
	Affixes    string
	Qualified  bool
	Reason     string
	Action     string
	ErrorKind  string
	DurationMS int64
}

// DecisionRow переводит событие в строку таблицы. Свойства хранятся
// как "+текст|-текст".
func DecisionRow(ev cleaner.ItemEvent) Decision {
	parts := make([]string, 0, len(ev.Affixes))
	for _, a := range ev.Affixes {
		sign := "+"
		if !a.IsPositive() {
			sign = "-"
		}
		parts = append(parts, sign+a.Text())
	}
	return Decision{
		SessionID:  ev.SessionID,
		Index:      ev.Index,
		State:      ev.State.String(),
		Affixes:    strings.Join(parts, "|"),
		Qualified:  ev.Match.Qualified,
		Reason:     ev.Match.Reason,
		Action:     string(ev.Action),
		ErrorKind:  string(ev.Kind),
		DurationMS: ev.Duration.Milliseconds(),
	}
}
