package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/go-sql-driver/mysql"

	"nrrelic/internal/logger"
)

// Open подключается к MySQL. В DSN принудительно включается parseTime.
func Open(dsn string) (*sql.DB, error) {
	cfg, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания подключения: %v", err)
	}
	db := sql.OpenDB(connector)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка подключения к базе данных: %v", err)
	}
	return db, nil
}

// ParseDSN разбирает DSN и включает parseTime
func ParseDSN(dsn string) (*mysql.Config, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора DSN: %v", err)
	}
	cfg.ParseTime = true
	return cfg, nil
}

// Schema таблицы сессий, решений и удаленного управления
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS cleaning_sessions (
		id VARCHAR(36) PRIMARY KEY,
		mode VARCHAR(16) NOT NULL,
		cleaning_mode VARCHAR(16) NOT NULL,
		target INT NOT NULL,
		total_detected INT DEFAULT 0,
		qualified INT DEFAULT 0,
		unqualified INT DEFAULT 0,
		skipped INT DEFAULT 0,
		sold INT DEFAULT 0,
		favorited INT DEFAULT 0,
		unfavorited INT DEFAULT 0,
		pending INT DEFAULT 0,
		confirmed BOOLEAN DEFAULT FALSE,
		error_kind VARCHAR(64),
		error_text TEXT,
		started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		finished_at TIMESTAMP NULL
	)`,
	`CREATE TABLE IF NOT EXISTS item_decisions (
		id INT AUTO_INCREMENT PRIMARY KEY,
		session_id VARCHAR(36) NOT NULL,
		item_index INT NOT NULL,
		state VARCHAR(32) NOT NULL,
		affixes TEXT,
		qualified BOOLEAN DEFAULT FALSE,
		reason VARCHAR(255),
		action VARCHAR(32) NOT NULL,
		error_kind VARCHAR(64),
		duration_ms INT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_session (session_id)
	)`,
	`CREATE TABLE IF NOT EXISTS bot_status (
		id INT AUTO_INCREMENT PRIMARY KEY,
		current_status VARCHAR(64) NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS bot_actions (
		id INT AUTO_INCREMENT PRIMARY KEY,
		action VARCHAR(64) NOT NULL,
		processed BOOLEAN DEFAULT FALSE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
}

// DatabaseManager содержит функции для работы с базой данных
type DatabaseManager struct {
	db     *sql.DB
	logger *logger.LoggerManager
	wg     sync.WaitGroup // для ожидания завершения асинхронных операций
}

// NewDatabaseManager создает новый экземпляр DatabaseManager
func NewDatabaseManager(db *sql.DB, loggerManager *logger.LoggerManager) *DatabaseManager {
	return &DatabaseManager{
		db:     db,
		logger: loggerManager,
	}
}

// EnsureSchema создает таблицы, если их нет
func (h *DatabaseManager) EnsureSchema(ctx context.Context) error {
	for _, stmt := range Schema {
		if _, err := h.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ошибка создания таблицы: %v", err)
		}
	}
	return nil
}

// async выполняет запись в фоне; ошибки только логируются
func (h *DatabaseManager) async(what string, fn func(ctx context.Context) error) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			h.logger.LogError(err, "Ошибка асинхронного сохранения: "+what)
		}
	}()
}

// WaitForAsyncOperations ожидает завершения всех асинхронных операций сохранения
func (h *DatabaseManager) WaitForAsyncOperations() {
	h.logger.Info("⏳ Ожидаем завершения асинхронных операций сохранения...")
	h.wg.Wait()
	h.logger.Info("✅ Все асинхронные операции сохранения завершены")
}
