package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Удаленные команды
const (
	ActionStop  = "stop"
	ActionStart = "start"
)

// Status последний статус бота
type Status struct {
	ID            int
	CurrentStatus string
	UpdatedAt     time.Time
}

// Action команда из таблицы bot_actions
type Action struct {
	ID        int
	Action    string
	Processed bool
	CreatedAt time.Time
}

// UpdateStatus добавляет запись статуса
func (h *DatabaseManager) UpdateStatus(ctx context.Context, status string) error {
	if _, err := h.db.ExecContext(ctx, "INSERT INTO bot_status (current_status) VALUES (?)", status); err != nil {
		return fmt.Errorf("ошибка обновления статуса: %v", err)
	}
	return nil
}

// AddAction добавляет команду
func (h *DatabaseManager) AddAction(ctx context.Context, action string) error {
	if _, err := h.db.ExecContext(ctx, "INSERT INTO bot_actions (action) VALUES (?)", action); err != nil {
		return fmt.Errorf("ошибка добавления действия: %v", err)
	}
	return nil
}

// TakeAction забирает самую старую необработанную команду и помечает ее
// обработанной. Пустая строка, если команд нет.
func (h *DatabaseManager) TakeAction(ctx context.Context) (string, error) {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("ошибка начала транзакции: %v", err)
	}
	defer tx.Rollback()

	var id int
	var action string
	err = tx.QueryRowContext(ctx,
		"SELECT id, action FROM bot_actions WHERE processed = FALSE ORDER BY id LIMIT 1 FOR UPDATE").Scan(&id, &action)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("ошибка чтения действий: %v", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE bot_actions SET processed = TRUE WHERE id = ?", id); err != nil {
		return "", fmt.Errorf("ошибка отметки действия: %v", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("ошибка фиксации транзакции: %v", err)
	}
	return action, nil
}

// PollActions опрашивает таблицу команд с интервалом и передает каждую
// команду в handle, пока не отменен ctx
func (h *DatabaseManager) PollActions(ctx context.Context, interval time.Duration, handle func(action string)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			action, err := h.TakeAction(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				h.logger.LogError(err, "Ошибка опроса команд")
				continue
			}
			if action != "" {
				h.logger.Info("📨 Получена команда: %s", action)
				handle(action)
			}
		}
	}
}

// GetStatusAndActions текущий статус и последние команды
func (h *DatabaseManager) GetStatusAndActions(ctx context.Context, limit int) (Status, []Action, error) {
	var status Status
	err := h.db.QueryRowContext(ctx,
		"SELECT id, current_status, updated_at FROM bot_status ORDER BY id DESC LIMIT 1").
		Scan(&status.ID, &status.CurrentStatus, &status.UpdatedAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Status{}, nil, fmt.Errorf("ошибка чтения статуса: %v", err)
	}

	rows, err := h.db.QueryContext(ctx,
		"SELECT id, action, processed, created_at FROM bot_actions ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return status, nil, fmt.Errorf("ошибка чтения действий: %v", err)
	}
	defer rows.Close()

	var actions []Action
	for rows.Next() {
		var a Action
		if err := rows.Scan(&a.ID, &a.Action, &a.Processed, &a.CreatedAt); err != nil {
			return status, nil, fmt.Errorf("ошибка чтения действия: %v", err)
		}
		actions = append(actions, a)
	}
	return status, actions, rows.Err()
}
