package affix

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"nrrelic/internal/logger"
	"nrrelic/internal/normalize"
	"nrrelic/internal/vocabulary"
)

const (
	// SimilarityThreshold минимальная похожесть для принятия совпадения
	SimilarityThreshold = 0.90
	// MaxAttempts число циклов захват+распознавание+сопоставление
	MaxAttempts = 3
)

var ErrRecognitionFailed = errors.New("свойства не распознаны")

// Candidate фрагмент текста OCR после склейки переносов
type Candidate struct {
	Text       string
	StartLine  int
	EndLine    int
	Confidence float64
}

// Resolved запись словаря, сопоставленная кандидату
type Resolved struct {
	Entry     vocabulary.Entry
	Candidate Candidate
}

func (r Resolved) Text() string     { return r.Entry.Text }
func (r Resolved) IsPositive() bool { return r.Entry.IsPositive() }

// Result результат распознавания одной области свойств
type Result struct {
	Affixes    []Resolved
	Unresolved []Candidate
	Attempts   int
	Failed     bool
}

// Entries возвращает записи словаря в экранном порядке
func (r Result) Entries() []vocabulary.Entry {
	entries := make([]vocabulary.Entry, len(r.Affixes))
	for i, a := range r.Affixes {
		entries[i] = a.Entry
	}
	return entries
}

func (r Result) Positive() int {
	n := 0
	for _, a := range r.Affixes {
		if a.IsPositive() {
			n++
		}
	}
	return n
}

func (r Result) Negative() int {
	return len(r.Affixes) - r.Positive()
}

// Fingerprint отпечаток набора свойств, не зависящий от порядка
func (r Result) Fingerprint() string {
	texts := make([]string, len(r.Affixes))
	for i, a := range r.Affixes {
		texts[i] = a.Text()
	}
	sort.Strings(texts)
	return strings.Join(texts, "|")
}

// Recognizer возвращает строки текста с изображения
type Recognizer interface {
	Recognize(img image.Image) ([]string, error)
}

// CaptureFunc делает свежий снимок области свойств
type CaptureFunc func() (image.Image, error)

type match struct {
	entry vocabulary.Entry
	score float64
	found bool
}

// Resolver превращает строки OCR в записи словаря
type Resolver struct {
	store     *vocabulary.Store
	rules     map[string]string
	threshold float64
	attempts  int
	cache     *cache.Cache
	logger    *logger.LoggerManager
}

// NewResolver создает новый экземпляр Resolver
func NewResolver(store *vocabulary.Store, rules vocabulary.MergeRules, loggerManager *logger.LoggerManager) *Resolver {
	normalized := make(map[string]string, len(rules))
	for head, tail := range rules {
		normalized[normalize.Normalize(head)] = normalize.Normalize(tail)
	}
	return &Resolver{
		store:     store,
		rules:     normalized,
		threshold: SimilarityThreshold,
		attempts:  MaxAttempts,
		cache:     cache.New(10*time.Minute, 20*time.Minute),
		logger:    loggerManager,
	}
}

// Resolve выполняет до MaxAttempts циклов захват+распознавание+сопоставление,
// каждый раз со свежим снимком, пока не найдется хотя бы одно свойство.
// Ошибки словаря возвращаются сразу.
func (r *Resolver) Resolve(ctx context.Context, capture CaptureFunc, recognizer Recognizer, mode vocabulary.Mode) (Result, error) {
	var last Result
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return last, err
		}

		img, err := capture()
		if err != nil {
			r.logger.Warn("⚠️ Попытка %d/%d: ошибка захвата области свойств: %v", attempt, r.attempts, err)
			continue
		}
		lines, err := recognizer.Recognize(img)
		if err != nil {
			r.logger.Warn("⚠️ Попытка %d/%d: ошибка OCR: %v", attempt, r.attempts, err)
			continue
		}

		res, err := r.ResolveLines(mode, lines)
		if err != nil {
			return res, err
		}
		res.Attempts = attempt
		if len(res.Affixes) > 0 {
			return res, nil
		}
		last = res
		r.logger.Debug("🔁 Попытка %d/%d: свойства не найдены в %d строках", attempt, r.attempts, len(lines))
	}

	last.Affixes = nil
	last.Attempts = r.attempts
	last.Failed = true
	return last, fmt.Errorf("%w: %d попыток", ErrRecognitionFailed, r.attempts)
}

// ResolveLines сопоставляет уже распознанные строки с таблицей режима
func (r *Resolver) ResolveLines(mode vocabulary.Mode, lines []string) (Result, error) {
	lease, err := r.store.Acquire(mode)
	if err != nil {
		return Result{}, err
	}
	defer lease.Release()
	table := lease.Table()

	var res Result
	candidates := r.Candidates(lines)
	for i := 0; i < len(candidates); i++ {
		c := candidates[i]
		m := r.bestMatch(table, c.Text)
		ok := m.found && m.score >= r.threshold

		// нераспознанный фрагмент пробуем склеить со следующим
		if !ok && i+1 < len(candidates) {
			next := candidates[i+1]
			joined := c.Text + normalize.StripLeadingNoise(next.Text)
			jm := r.bestMatch(table, joined)
			if jm.found && jm.score >= r.threshold && jm.score > m.score {
				c = Candidate{Text: joined, StartLine: c.StartLine, EndLine: next.EndLine}
				m, ok = jm, true
				i++
			}
		}

		c.Confidence = m.score
		if ok {
			res.Affixes = append(res.Affixes, Resolved{Entry: m.entry, Candidate: c})
		} else {
			res.Unresolved = append(res.Unresolved, c)
		}
	}
	return res, nil
}

// Candidates делит строки на записи и склеивает переносы по словарю склейки
// до тех пор, пока применимо хоть одно правило
func (r *Resolver) Candidates(lines []string) []Candidate {
	var pieces []Candidate
	for i, line := range lines {
		for _, part := range normalize.SplitEntries(normalize.Normalize(line)) {
			pieces = append(pieces, Candidate{Text: part, StartLine: i, EndLine: i})
		}
	}

	merged := make([]Candidate, 0, len(pieces))
	for i := 0; i < len(pieces); i++ {
		c := pieces[i]
		used := map[string]bool{}
		for i+1 < len(pieces) {
			head, ok := r.mergeRule(c.Text, pieces[i+1].Text, used)
			if !ok {
				break
			}
			used[head] = true
			c.Text = normalize.Normalize(c.Text + pieces[i+1].Text)
			c.EndLine = pieces[i+1].EndLine
			i++
		}
		merged = append(merged, c)
	}
	return merged
}

// mergeRule ищет правило склейки text со следующим фрагментом. Ключ
// правила совпадает с началом text, побеждает самый длинный. Значение
// либо продолжение, с которого обязан начинаться next, либо полная
// запись, начинающаяся с ключа: тогда next приклеивается, пока text
// короче записи. Каждое правило срабатывает для кандидата один раз.
func (r *Resolver) mergeRule(text, next string, used map[string]bool) (string, bool) {
	best, found := "", false
	for head, value := range r.rules {
		if used[head] || !strings.HasPrefix(text, head) || (found && len(head) <= len(best)) {
			continue
		}
		if strings.HasPrefix(value, head) {
			if len(text) >= len(value) {
				continue
			}
		} else if !strings.HasPrefix(next, value) {
			continue
		}
		best, found = head, true
	}
	return best, found
}

// bestMatch лучшая запись таблицы; при равенстве побеждает более ранняя
func (r *Resolver) bestMatch(table *vocabulary.Table, text string) match {
	key := fmt.Sprintf("%s|%d|%s", table.Mode(), table.Generation(), text)
	if v, ok := r.cache.Get(key); ok {
		return v.(match)
	}

	var best match
	if e, ok := table.Lookup(text); ok {
		best = match{entry: e, score: 1, found: true}
	} else {
		for _, e := range table.Entries() {
			if s := Similarity(text, e.Text); !best.found || s > best.score {
				best = match{entry: e, score: s, found: true}
			}
		}
	}

	r.cache.Set(key, best, cache.DefaultExpiration)
	return best
}
