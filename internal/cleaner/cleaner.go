package cleaner

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"nrrelic/internal/affix"
	"nrrelic/internal/itemstate"
	"nrrelic/internal/logger"
	"nrrelic/internal/preset"
	"nrrelic/internal/region"
	"nrrelic/internal/vocabulary"
)

// State этап конечного автомата очистки
type State int32

const (
	Idle State = iota
	Filtering
	Detecting
	Recognizing
	Deciding
	Acting
	Advancing
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Filtering:
		return "Filtering"
	case Detecting:
		return "Detecting"
	case Recognizing:
		return "Recognizing"
	case Deciding:
		return "Deciding"
	case Acting:
		return "Acting"
	case Advancing:
		return "Advancing"
	case Stopping:
		return "Stopping"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Число предметов по умолчанию, если автоопределение не удалось
const DefaultItemCount = 100

// MaxItemCount верхняя граница ручного числа предметов
const MaxItemCount = 2000

// maxInteractionFailures подряд идущих сбоев захвата до остановки
const maxInteractionFailures = 5

// Keys клавиши игры
type Keys struct {
	MarkSale       string
	ToggleFavorite string
	NextItem       string
	OpenSale       string
	ConfirmSale    string
}

// Delays паузы сценария
type Delays struct {
	Startup     time.Duration
	AfterAction time.Duration
	Confirm     time.Duration
	Filter      time.Duration
}

// Options параметры одной сессии
type Options struct {
	Mode                  vocabulary.Mode
	Cleaning              CleaningMode
	AllowOperateFavorited bool
	RequireDoubleValid    bool
	// MaxItems 0 означает автоопределение по счетчику на экране
	MaxItems      int
	ApplyFilter   bool
	FilterKeyword string
}

// Stats счетчики сессии
type Stats struct {
	TotalDetected int `json:"total_detected"`
	Qualified     int `json:"qualified"`
	Unqualified   int `json:"unqualified"`
	Skipped       int `json:"skipped"`
	Sold          int `json:"sold"`
	Favorited     int `json:"favorited"`
	Unfavorited   int `json:"unfavorited"`
	Pending       int `json:"pending_sell_count"`
}

// Regions доступ к областям экрана
type Regions interface {
	Capture(name region.Name) (image.Image, error)
	Click(name region.Name) error
	ReadText(name region.Name) ([]string, error)
	DetectCount(name region.Name) (int, error)
}

// StateDetector классификация предмета под курсором
type StateDetector interface {
	Detect(grid image.Image) itemstate.State
}

// AffixResolver распознавание свойств
type AffixResolver interface {
	Resolve(ctx context.Context, capture affix.CaptureFunc, recognizer affix.Recognizer, mode vocabulary.Mode) (affix.Result, error)
}

// RuleSets наборы правил
type RuleSets interface {
	Reload() error
	Match(mode vocabulary.Mode, affixes []vocabulary.Entry, requireDouble bool) preset.MatchResult
}

// VocabularyLoader загрузка словаря режима
type VocabularyLoader interface {
	Load(mode vocabulary.Mode) error
}

// KeySender нажатие клавиш в игре
type KeySender interface {
	PressKey(key string) error
}

// Deps зависимости оркестратора
type Deps struct {
	Vocabulary VocabularyLoader
	Resolver   AffixResolver
	Recognizer affix.Recognizer
	Rules      RuleSets
	Detector   StateDetector
	Regions    Regions
	Input      KeySender
	Logger     *logger.LoggerManager
	Keys       Keys
	Delays     Delays
	Observers  []Observer
}

// Cleaner оркестратор очистки. Одновременно активна одна сессия.
type Cleaner struct {
	deps Deps

	mu      sync.Mutex
	active  bool
	done    chan struct{}
	summary Summary

	running atomic.Bool
	paused  atomic.Bool
	state   atomic.Int32

	statsMu sync.Mutex
	stats   Stats
}

// New создает оркестратор
func New(deps Deps) *Cleaner {
	c := &Cleaner{deps: deps}
	c.done = make(chan struct{})
	close(c.done)
	return c
}

// Start запускает сессию в отдельной горутине
func (c *Cleaner) Start(ctx context.Context, opts Options) error {
	if err := opts.validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return ErrSessionActive
	}
	c.active = true
	c.done = make(chan struct{})
	c.summary = Summary{}
	c.resetStats()
	c.paused.Store(false)
	c.running.Store(true)

	s := &session{
		id:      uuid.NewString(),
		opts:    opts,
		started: time.Now(),
	}
	go c.run(ctx, s, c.done)
	return nil
}

func (o Options) validate() error {
	if o.Mode != vocabulary.Normal && o.Mode != vocabulary.Deepnight {
		return fmt.Errorf("неизвестный режим: %q", o.Mode)
	}
	if o.Cleaning != Sell && o.Cleaning != Favorite {
		return fmt.Errorf("неизвестный режим очистки: %q", o.Cleaning)
	}
	if o.MaxItems < 0 || o.MaxItems > MaxItemCount {
		return fmt.Errorf("число предметов должно быть от 1 до %d", MaxItemCount)
	}
	return nil
}

// Stop просит сессию завершиться на границе предмета
func (c *Cleaner) Stop() {
	c.running.Store(false)
}

// Pause приостанавливает обработку на границе предмета
func (c *Cleaner) Pause() {
	c.paused.Store(true)
}

// Resume продолжает обработку после паузы
func (c *Cleaner) Resume() {
	c.paused.Store(false)
}

// Running выполняется ли сессия
func (c *Cleaner) Running() bool {
	return c.running.Load()
}

// Active есть ли незавершенная сессия
func (c *Cleaner) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Wait ждет завершения текущей сессии и возвращает ее итог
func (c *Cleaner) Wait() Summary {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	<-done

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary
}

// Snapshot копия счетчиков
func (c *Cleaner) Snapshot() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// State текущий этап
func (c *Cleaner) State() State {
	return State(c.state.Load())
}

func (c *Cleaner) setState(s State) {
	c.state.Store(int32(s))
}

func (c *Cleaner) resetStats() {
	c.statsMu.Lock()
	c.stats = Stats{}
	c.statsMu.Unlock()
}

func (c *Cleaner) updateStats(fn func(*Stats)) Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	fn(&c.stats)
	return c.stats
}

func (c *Cleaner) finish(s *session, summary Summary, done chan struct{}) {
	summary.SessionID = s.id
	summary.Stats = c.Snapshot()
	summary.Duration = time.Since(s.started)
	for _, o := range c.deps.Observers {
		o.SessionFinished(summary)
	}

	c.running.Store(false)
	c.setState(Idle)
	c.mu.Lock()
	c.summary = summary
	c.active = false
	c.mu.Unlock()
	close(done)
}

// wait пауза, прерываемая отменой контекста
func wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
