package vocabulary

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"nrrelic/internal/logger"
)

// Mode режим распознавания и сопоставления
type Mode string

const (
	Normal    Mode = "normal"
	Deepnight Mode = "deepnight"
)

// ParseMode разбирает строку режима из конфигурации или CLI
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case Normal:
		return Normal, nil
	case Deepnight:
		return Deepnight, nil
	}
	return "", fmt.Errorf("неизвестный режим: %q", s)
}

// Category категория набора правил
type Category string

const (
	NormalWhitelist    Category = "normal_whitelist"
	DeepnightWhitelist Category = "deepnight_whitelist"
	DeepnightBlacklist Category = "deepnight_blacklist"
)

// Valid сообщает, известна ли категория
func (c Category) Valid() bool {
	switch c {
	case NormalWhitelist, DeepnightWhitelist, DeepnightBlacklist:
		return true
	}
	return false
}

// WhitelistCategory возвращает категорию белого списка для режима
func WhitelistCategory(mode Mode) Category {
	if mode == Deepnight {
		return DeepnightWhitelist
	}
	return NormalWhitelist
}

// Polarity полярность записи словаря
type Polarity int

const (
	Positive Polarity = iota
	Negative
)

func (p Polarity) String() string {
	if p == Negative {
		return "negative"
	}
	return "positive"
}

// Entry неизменяемая запись словаря
type Entry struct {
	Text     string
	Polarity Polarity
}

// IsPositive сообщает, пришла ли запись из позитивного списка
func (e Entry) IsPositive() bool {
	return e.Polarity == Positive
}

// Имена файлов списков в каталоге данных
const (
	NormalFile        = "normal.txt"
	NormalSpecialFile = "normal_special.txt"
	DeepnightPosFile  = "deepnight_pos.txt"
	DeepnightNegFile  = "deepnight_neg.txt"
	MergeRulesFile    = "merge_rules.txt"
)

const separator = "→"

var ErrVocabularyLoad = errors.New("ошибка загрузки словаря")

type source struct {
	file     string
	polarity Polarity
}

var recognitionSources = map[Mode][]source{
	Normal:    {{NormalFile, Positive}, {NormalSpecialFile, Positive}},
	Deepnight: {{DeepnightPosFile, Positive}, {DeepnightNegFile, Negative}},
}

var editingSources = map[Category]string{
	NormalWhitelist:    NormalFile,
	DeepnightWhitelist: DeepnightPosFile,
	DeepnightBlacklist: DeepnightNegFile,
}

// Table неизменяемая таблица словаря одного режима
type Table struct {
	mode       Mode
	generation uint64
	entries    []Entry
	index      map[string]int
}

func (t *Table) Mode() Mode         { return t.mode }
func (t *Table) Generation() uint64 { return t.generation }
func (t *Table) Len() int           { return len(t.entries) }

// Entries возвращает записи в порядке файлов; срез нельзя изменять
func (t *Table) Entries() []Entry { return t.entries }

// Lookup точный поиск записи по тексту
func (t *Table) Lookup(text string) (Entry, bool) {
	i, ok := t.index[text]
	if !ok {
		return Entry{}, false
	}
	return t.entries[i], true
}

// Store хранит загруженную таблицу распознавания. Перезагрузка и
// чтение через Lease взаимно исключены.
type Store struct {
	dir    string
	logger *logger.LoggerManager

	mu         sync.RWMutex
	table      *Table
	generation uint64
}

// NewStore создает новый экземпляр Store
func NewStore(dir string, loggerManager *logger.LoggerManager) *Store {
	return &Store{dir: dir, logger: loggerManager}
}

// Dir каталог списков
func (s *Store) Dir() string { return s.dir }

// Mode возвращает загруженный режим или пустую строку
func (s *Store) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.table == nil {
		return ""
	}
	return s.table.mode
}

// Load загружает профиль распознавания для режима. Повторная загрузка уже
// загруженного режима ничего не делает. При ошибке прежняя таблица остается.
func (s *Store) Load(mode Mode) error {
	sources, ok := recognitionSources[mode]
	if !ok {
		return fmt.Errorf("%w: неизвестный режим %q", ErrVocabularyLoad, mode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.table != nil && s.table.mode == mode {
		return nil
	}

	table := &Table{mode: mode, index: make(map[string]int)}
	for _, src := range sources {
		path := filepath.Join(s.dir, src.file)
		texts, err := ReadEntries(path)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrVocabularyLoad, path, err)
		}
		for _, text := range texts {
			if i, dup := table.index[text]; dup {
				if table.entries[i].Polarity != src.polarity {
					return fmt.Errorf("%w: запись %q присутствует в обоих списках полярности", ErrVocabularyLoad, text)
				}
				continue
			}
			table.index[text] = len(table.entries)
			table.entries = append(table.entries, Entry{Text: text, Polarity: src.polarity})
		}
	}

	s.generation++
	table.generation = s.generation
	s.table = table
	if s.logger != nil {
		s.logger.Info("📚 Словарь загружен: режим=%s, записей=%d", mode, table.Len())
	}
	return nil
}

// Lease удерживает таблицу от перезагрузки до Release
type Lease struct {
	table *Table
	once  sync.Once
	mu    *sync.RWMutex
}

// Table возвращает таблицу, действительную до Release
func (l *Lease) Table() *Table { return l.table }

// Release освобождает аренду
func (l *Lease) Release() {
	l.once.Do(l.mu.RUnlock)
}

// Acquire загружает режим при необходимости и возвращает аренду его таблицы
func (s *Store) Acquire(mode Mode) (*Lease, error) {
	for attempt := 0; attempt < 3; attempt++ {
		s.mu.RLock()
		if s.table != nil && s.table.mode == mode {
			return &Lease{table: s.table, mu: &s.mu}, nil
		}
		s.mu.RUnlock()

		if err := s.Load(mode); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: режим %s перезагружается конкурентно", ErrVocabularyLoad, mode)
}

// LoadEditing загружает профиль редактирования для категории. Таблицу
// распознавания не затрагивает.
func (s *Store) LoadEditing(category Category) ([]string, error) {
	file, ok := editingSources[category]
	if !ok {
		return nil, fmt.Errorf("%w: неизвестная категория %q", ErrVocabularyLoad, category)
	}
	path := filepath.Join(s.dir, file)
	texts, err := ReadEntries(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrVocabularyLoad, path, err)
	}
	return texts, nil
}

// ReadEntries читает список формата "номер → запись". Строки без
// разделителя берутся целиком, спецсимволы сохраняются.
func ReadEntries(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if line == "" {
			continue
		}
		if _, after, found := strings.Cut(line, separator); found {
			line = strings.TrimSpace(after)
		}
		if line != "" {
			entries = append(entries, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// MergeRules отображает начало обрезанной OCR-строки на продолжение,
// которое должно следовать за ней, или на полную склеенную запись
type MergeRules map[string]string

// LoadMergeRules читает словарь склейки "обрезок → продолжение".
// Отсутствующий файл дает пустой словарь.
func LoadMergeRules(path string) (MergeRules, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return MergeRules{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrVocabularyLoad, path, err)
	}
	defer file.Close()

	rules := MergeRules{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		head, tail, found := strings.Cut(line, separator)
		if !found {
			continue
		}
		head, tail = strings.TrimSpace(head), strings.TrimSpace(tail)
		if head != "" && tail != "" {
			rules[head] = tail
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrVocabularyLoad, path, err)
	}
	return rules, nil
}
