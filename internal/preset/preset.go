package preset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"nrrelic/internal/logger"
	"nrrelic/internal/vocabulary"
)

// MaxDedicated предел специальных наборов на категорию
const MaxDedicated = 20

const fileVersion = "1.0"

// Идентификаторы фиксированных наборов
const (
	NormalGeneralID    = "normal_general"
	DeepnightGeneralID = "deepnight_general"
	BlacklistID        = "deepnight_blacklist"
)

var (
	ErrRuleSetValidation = errors.New("набор правил не прошел проверку")
	ErrDedicatedLimit    = fmt.Errorf("достигнут предел специальных наборов (%d)", MaxDedicated)
	ErrNotFound          = errors.New("набор правил не найден")
)

// RuleSet именованный набор допустимых свойств
type RuleSet struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Category  vocabulary.Category `json:"category"`
	Affixes   []string            `json:"affixes"`
	IsGeneral bool                `json:"is_general"`
	IsActive  bool                `json:"is_active"`
}

func (r RuleSet) clone() RuleSet {
	r.Affixes = append([]string(nil), r.Affixes...)
	return r
}

type document struct {
	Version    string    `json:"version"`
	ExportedAt string    `json:"exported_at,omitempty"`
	Presets    []RuleSet `json:"presets"`
}

// Store владеет наборами правил и их файлом
type Store struct {
	path   string
	logger *logger.LoggerManager

	mu   sync.RWMutex
	sets []RuleSet
}

// NewStore создает новый экземпляр Store. Отсутствующий файл создается с
// наборами по умолчанию.
func NewStore(path string, loggerManager *logger.LoggerManager) (*Store, error) {
	s := &Store{path: path, logger: loggerManager}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		s.sets = defaultSets()
		if err := s.save(); err != nil {
			return nil, err
		}
		s.logger.Info("🆕 Создан файл наборов по умолчанию: %s", path)
		return s, nil
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func defaultSets() []RuleSet {
	return []RuleSet{
		{ID: NormalGeneralID, Name: "Общий набор (обычный)", Category: vocabulary.NormalWhitelist, Affixes: []string{}, IsGeneral: true, IsActive: true},
		{ID: DeepnightGeneralID, Name: "Общий набор (глубокая ночь)", Category: vocabulary.DeepnightWhitelist, Affixes: []string{}, IsGeneral: true, IsActive: true},
		{ID: BlacklistID, Name: "Черный список (глубокая ночь)", Category: vocabulary.DeepnightBlacklist, Affixes: []string{}, IsActive: true},
	}
}

// Path путь к файлу наборов
func (s *Store) Path() string { return s.path }

// Reload перечитывает файл целиком
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("ошибка чтения наборов: %v", err)
	}
	sets, err := decode(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sets = sets
	s.mu.Unlock()
	s.logger.Info("📂 Наборы правил загружены: %d", len(sets))
	return nil
}

func decode(data []byte) ([]RuleSet, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuleSetValidation, err)
	}
	if err := Validate(doc.Presets); err != nil {
		return nil, err
	}
	return doc.Presets, nil
}

// Validate проверяет обязательные поля и инварианты набора наборов
func Validate(sets []RuleSet) error {
	ids := map[string]bool{}
	activeGeneral := map[vocabulary.Category]int{}
	dedicated := map[vocabulary.Category]int{}
	blacklists := 0

	for i, r := range sets {
		switch {
		case r.ID == "":
			return fmt.Errorf("%w: запись %d без id", ErrRuleSetValidation, i)
		case r.Name == "":
			return fmt.Errorf("%w: запись %s без имени", ErrRuleSetValidation, r.ID)
		case !r.Category.Valid():
			return fmt.Errorf("%w: запись %s с неизвестной категорией %q", ErrRuleSetValidation, r.ID, r.Category)
		case r.Affixes == nil:
			return fmt.Errorf("%w: запись %s без списка свойств", ErrRuleSetValidation, r.ID)
		case ids[r.ID]:
			return fmt.Errorf("%w: повторный id %s", ErrRuleSetValidation, r.ID)
		}
		ids[r.ID] = true

		switch {
		case r.Category == vocabulary.DeepnightBlacklist:
			blacklists++
		case r.IsGeneral && r.IsActive:
			activeGeneral[r.Category]++
		case !r.IsGeneral:
			dedicated[r.Category]++
		}
	}

	if blacklists != 1 {
		return fmt.Errorf("%w: черных списков %d, ожидается ровно один", ErrRuleSetValidation, blacklists)
	}
	for cat, n := range activeGeneral {
		if n > 1 {
			return fmt.Errorf("%w: %d активных общих наборов в категории %s", ErrRuleSetValidation, n, cat)
		}
	}
	for cat, n := range dedicated {
		if n > MaxDedicated {
			return fmt.Errorf("%w: %d специальных наборов в категории %s", ErrRuleSetValidation, n, cat)
		}
	}
	return nil
}

// save записывает наборы; вызывается под блокировкой записи или до публикации
func (s *Store) save() error {
	data, err := json.MarshalIndent(document{Version: fileVersion, Presets: s.sets}, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации наборов: %v", err)
	}
	return writeFile(s.path, data)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("ошибка создания каталога наборов: %v", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("ошибка записи наборов: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("ошибка записи наборов: %v", err)
	}
	return nil
}

// All возвращает копии всех наборов
func (s *Store) All() []RuleSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RuleSet, len(s.sets))
	for i, r := range s.sets {
		out[i] = r.clone()
	}
	return out
}

func (s *Store) find(id string) int {
	for i, r := range s.sets {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// mutate применяет изменение и сохраняет файл; при ошибке записи состояние откатывается
func (s *Store) mutate(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := make([]RuleSet, len(s.sets))
	for i, r := range s.sets {
		prev[i] = r.clone()
	}
	if err := fn(); err != nil {
		s.sets = prev
		return err
	}
	if err := s.save(); err != nil {
		s.sets = prev
		return err
	}
	return nil
}

// General активный общий набор режима
func (s *Store) General(mode vocabulary.Mode) (RuleSet, bool) {
	cat := vocabulary.WhitelistCategory(mode)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.sets {
		if r.Category == cat && r.IsGeneral && r.IsActive {
			return r.clone(), true
		}
	}
	return RuleSet{}, false
}

// UpdateGeneral заменяет свойства общего набора режима
func (s *Store) UpdateGeneral(mode vocabulary.Mode, affixes []string) error {
	cat := vocabulary.WhitelistCategory(mode)
	return s.mutate(func() error {
		for i, r := range s.sets {
			if r.Category == cat && r.IsGeneral {
				s.sets[i].Affixes = append([]string{}, affixes...)
				return nil
			}
		}
		return fmt.Errorf("%w: общий набор режима %s", ErrNotFound, mode)
	})
}

// Dedicated все специальные наборы режима
func (s *Store) Dedicated(mode vocabulary.Mode) []RuleSet {
	return s.dedicated(mode, false)
}

// ActiveDedicated активные специальные наборы режима
func (s *Store) ActiveDedicated(mode vocabulary.Mode) []RuleSet {
	return s.dedicated(mode, true)
}

func (s *Store) dedicated(mode vocabulary.Mode, activeOnly bool) []RuleSet {
	cat := vocabulary.WhitelistCategory(mode)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []RuleSet
	for _, r := range s.sets {
		if r.Category == cat && !r.IsGeneral && (!activeOnly || r.IsActive) {
			out = append(out, r.clone())
		}
	}
	return out
}

// CreateDedicated создает специальный набор и возвращает его id
func (s *Store) CreateDedicated(mode vocabulary.Mode, name string, affixes []string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: пустое имя", ErrRuleSetValidation)
	}
	cat := vocabulary.WhitelistCategory(mode)
	id := uuid.NewString()
	err := s.mutate(func() error {
		count := 0
		for _, r := range s.sets {
			if r.Category == cat && !r.IsGeneral {
				count++
			}
		}
		if count >= MaxDedicated {
			return ErrDedicatedLimit
		}
		s.sets = append(s.sets, RuleSet{
			ID:       id,
			Name:     name,
			Category: cat,
			Affixes:  append([]string{}, affixes...),
			IsActive: true,
		})
		return nil
	})
	if err != nil {
		return "", err
	}
	s.logger.Info("➕ Создан специальный набор %q (%s)", name, id)
	return id, nil
}

// UpdateDedicated меняет имя и/или свойства специального набора; nil означает "не менять"
func (s *Store) UpdateDedicated(id string, name *string, affixes []string) error {
	return s.mutate(func() error {
		i := s.find(id)
		if i < 0 || s.sets[i].IsGeneral || s.sets[i].Category == vocabulary.DeepnightBlacklist {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if name != nil {
			s.sets[i].Name = *name
		}
		if affixes != nil {
			s.sets[i].Affixes = append([]string{}, affixes...)
		}
		return nil
	})
}

// DeleteDedicated удаляет специальный набор
func (s *Store) DeleteDedicated(id string) error {
	return s.mutate(func() error {
		i := s.find(id)
		if i < 0 || s.sets[i].IsGeneral || s.sets[i].Category == vocabulary.DeepnightBlacklist {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		s.sets = append(s.sets[:i], s.sets[i+1:]...)
		return nil
	})
}

// ToggleActive переключает активность специального набора
func (s *Store) ToggleActive(id string) (bool, error) {
	var active bool
	err := s.mutate(func() error {
		i := s.find(id)
		if i < 0 || s.sets[i].IsGeneral || s.sets[i].Category == vocabulary.DeepnightBlacklist {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		s.sets[i].IsActive = !s.sets[i].IsActive
		active = s.sets[i].IsActive
		return nil
	})
	return active, err
}

// Blacklist фиксированный черный список глубокой ночи
func (s *Store) Blacklist() RuleSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.sets {
		if r.Category == vocabulary.DeepnightBlacklist {
			return r.clone()
		}
	}
	return RuleSet{}
}

// UpdateBlacklist заменяет свойства черного списка
func (s *Store) UpdateBlacklist(affixes []string) error {
	return s.mutate(func() error {
		for i, r := range s.sets {
			if r.Category == vocabulary.DeepnightBlacklist {
				s.sets[i].Affixes = append([]string{}, affixes...)
				return nil
			}
		}
		return fmt.Errorf("%w: черный список", ErrNotFound)
	})
}

// Export записывает наборы с отметкой времени экспорта
func (s *Store) Export(w io.Writer) error {
	doc := document{
		Version:    fileVersion,
		ExportedAt: time.Now().Format(time.RFC3339),
		Presets:    s.All(),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("ошибка экспорта наборов: %v", err)
	}
	return nil
}

// BackupPath путь снимка предыдущего файла
func (s *Store) BackupPath() string { return s.path + ".bak" }

// Import заменяет все наборы. Невалидные данные отклоняются без изменения
// файла; перед перезаписью прежний файл копируется в BackupPath и
// восстанавливается, если запись не удалась.
func (s *Store) Import(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("ошибка чтения импорта: %v", err)
	}
	sets, err := decode(data)
	if err != nil {
		s.logger.Warn("⚠️ Импорт отклонен: %v", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("ошибка чтения текущих наборов: %v", err)
	}
	if prev != nil {
		if err := writeFile(s.BackupPath(), prev); err != nil {
			return err
		}
	}

	old := s.sets
	s.sets = sets
	if err := s.save(); err != nil {
		s.sets = old
		if prev != nil {
			if rerr := writeFile(s.path, prev); rerr != nil {
				s.logger.LogError(rerr, "Ошибка восстановления наборов из снимка")
			}
		}
		return err
	}
	s.logger.Info("📥 Импортировано наборов: %d (снимок: %s)", len(sets), s.BackupPath())
	return nil
}

// RestoreBackup возвращает файл из снимка и перечитывает его
func (s *Store) RestoreBackup() error {
	data, err := os.ReadFile(s.BackupPath())
	if err != nil {
		return fmt.Errorf("ошибка чтения снимка: %v", err)
	}
	if _, err := decode(data); err != nil {
		return err
	}
	if err := writeFile(s.path, data); err != nil {
		return err
	}
	return s.Reload()
}
