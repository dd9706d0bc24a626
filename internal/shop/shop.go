package shop

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"

	"nrrelic/internal/affix"
	"nrrelic/internal/cleaner"
	"nrrelic/internal/itemstate"
	"nrrelic/internal/logger"
	"nrrelic/internal/region"
	"nrrelic/internal/vocabulary"
)

// Version поколение реликвий у торговца
type Version string

const (
	NewRelics Version = "new"
	OldRelics Version = "old"
)

// ParseVersion разбирает поколение реликвий без учета регистра
func ParseVersion(s string) (Version, error) {
	switch v := Version(strings.ToLower(strings.TrimSpace(s))); v {
	case NewRelics, OldRelics:
		return v, nil
	}
	return "", fmt.Errorf("неизвестное поколение реликвий: %q", s)
}

// BatchSize реликвий в одной покупке
const BatchSize = 10

// maxScrollAttempts нажатий прокрутки в поисках реликвии
const maxScrollAttempts = 20

// DefaultMerchant имя торговца в заголовке его окна
const DefaultMerchant = "小壶商人巴萨"

var (
	ErrNotAtMerchant  = errors.New("merchant screen not open")
	ErrRelicNotFound  = errors.New("relic not found at merchant")
	ErrNoRelicPicture = errors.New("relic icon template missing")
)

// Причины остановки покупок
const (
	StopManual   = "manual"
	StopLimit    = "limit"
	StopCurrency = "currency"
	StopError    = "error"
)

// PurchaseButton кнопка покупки для режима и поколения
func PurchaseButton(mode vocabulary.Mode, v Version) region.Name {
	switch {
	case mode == vocabulary.Deepnight && v == OldRelics:
		return region.PurchaseOldDeepnight
	case mode == vocabulary.Deepnight:
		return region.PurchaseNewDeepnight
	case v == OldRelics:
		return region.PurchaseOldNormal
	}
	return region.PurchaseNewNormal
}

// Keys клавиши экрана торговца
type Keys struct {
	Menu     string
	Scroll   string
	Confirm  string
	Sell     string
	NextItem string
	Close    string
}

// Delays паузы сценария покупки
type Delays struct {
	Menu     time.Duration
	Scroll   time.Duration
	Purchase time.Duration
	Item     time.Duration
	Close    time.Duration
}

// Options параметры одного прогона покупок
type Options struct {
	Mode               vocabulary.Mode
	Version            Version
	RequireDoubleValid bool
	// Limit купленных реликвий, после которого покупки прекращаются; 0 без ограничения
	Limit int
	// CurrencyFloor остаток валюты, при котором новые покупки не делаются;
	// 0 отключает чтение счетчика
	CurrencyFloor int
	// Merchant текст заголовка окна торговца; пустой отключает проверку
	Merchant string
}

func (o Options) validate() error {
	if o.Mode != vocabulary.Normal && o.Mode != vocabulary.Deepnight {
		return fmt.Errorf("неизвестный режим: %q", o.Mode)
	}
	if o.Version != NewRelics && o.Version != OldRelics {
		return fmt.Errorf("неизвестное поколение реликвий: %q", o.Version)
	}
	if o.Limit < 0 || o.CurrencyFloor < 0 {
		return fmt.Errorf("лимит покупок и порог валюты не могут быть отрицательными")
	}
	return nil
}

// Stats счетчики покупок
type Stats struct {
	Purchased   int `json:"total_purchased"`
	Qualified   int `json:"qualified"`
	Unqualified int `json:"unqualified"`
	Sold        int `json:"sold"`
	Failed      int `json:"failed"`
}

// Relic оставленная годная реликвия
type Relic struct {
	At      time.Time
	Affixes []vocabulary.Entry
	Reason  string
}

// Summary итог прогона
type Summary struct {
	Stats    Stats
	Kept     []Relic
	Stopped  string
	Currency int
	Err      error
	Duration time.Duration
}

// Deps зависимости покупателя. Интерфейсы общие с очисткой инвентаря.
type Deps struct {
	Vocabulary cleaner.VocabularyLoader
	Resolver   cleaner.AffixResolver
	Recognizer affix.Recognizer
	Rules      cleaner.RuleSets
	Regions    cleaner.Regions
	Input      cleaner.KeySender
	Locator    itemstate.Locator
	// RelicIcon шаблон иконки реликвии в разрешении 1920x1080
	RelicIcon image.Image
	Threshold float64
	Logger    *logger.LoggerManager
	Keys      Keys
	Delays    Delays
}

// Shopper покупает реликвии у торговца и сразу продает негодные
type Shopper struct {
	deps    Deps
	running atomic.Bool

	mu    sync.Mutex
	stats Stats
	kept  []Relic
}

// New создает покупателя
func New(deps Deps) *Shopper {
	return &Shopper{deps: deps}
}

// Stop просит прогон завершиться на границе реликвии
func (s *Shopper) Stop() {
	s.running.Store(false)
}

// Running выполняется ли прогон
func (s *Shopper) Running() bool {
	return s.running.Load()
}

// Snapshot копия счетчиков
func (s *Shopper) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Shopper) update(fn func(*Stats)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.stats)
}

// Run покупает партии по BatchSize реликвий, пока не достигнут лимит,
// порог валюты или не запрошена остановка
func (s *Shopper) Run(ctx context.Context, opts Options) Summary {
	started := time.Now()
	s.mu.Lock()
	s.stats = Stats{}
	s.kept = nil
	s.mu.Unlock()
	s.running.Store(true)
	defer s.running.Store(false)

	summary := Summary{Stopped: StopManual}
	stopped, err := s.run(ctx, opts, &summary)
	if err != nil {
		summary.Err = err
		summary.Stopped = StopError
		s.deps.Logger.Error("⛔ Покупки остановлены: %v", err)
	} else if stopped != "" {
		summary.Stopped = stopped
	}

	s.mu.Lock()
	summary.Stats = s.stats
	summary.Kept = s.kept
	s.mu.Unlock()
	summary.Duration = time.Since(started)

	st := summary.Stats
	s.deps.Logger.Info("📊 Куплено: %d | годных: %d | негодных: %d | продано: %d | сбоев: %d",
		st.Purchased, st.Qualified, st.Unqualified, st.Sold, st.Failed)
	return summary
}

func (s *Shopper) run(ctx context.Context, opts Options, summary *Summary) (string, error) {
	log := s.deps.Logger
	if err := opts.validate(); err != nil {
		return "", err
	}
	if s.deps.RelicIcon == nil {
		return "", ErrNoRelicPicture
	}
	log.Info("🛒 Запуск покупок: режим=%s, поколение=%s, лимит=%d, порог валюты=%d",
		opts.Mode, opts.Version, opts.Limit, opts.CurrencyFloor)

	if err := s.deps.Vocabulary.Load(opts.Mode); err != nil {
		return "", err
	}
	if err := s.deps.Rules.Reload(); err != nil {
		return "", err
	}
	if err := s.enterMerchant(ctx, opts.Merchant); err != nil {
		return "", err
	}

	for {
		if ctx.Err() != nil || !s.running.Load() {
			return StopManual, nil
		}
		if opts.Limit > 0 && s.Snapshot().Purchased >= opts.Limit {
			log.Info("✅ Достигнут лимит покупок: %d", opts.Limit)
			return StopLimit, nil
		}
		if opts.CurrencyFloor > 0 {
			n, err := s.deps.Regions.DetectCount(region.Currency)
			if err != nil {
				return "", err
			}
			summary.Currency = n
			if n <= opts.CurrencyFloor {
				log.Info("✅ Валюта %d не выше порога %d", n, opts.CurrencyFloor)
				return StopCurrency, nil
			}
		}

		bought, err := s.purchase(ctx, opts)
		if err != nil {
			return "", err
		}
		if !bought {
			return StopManual, nil
		}
		if err := s.processBatch(ctx, opts); err != nil {
			return "", err
		}
		if err := s.press(s.deps.Keys.Close); err != nil {
			return "", err
		}
		wait(ctx, s.deps.Delays.Close)
	}
}

// enterMerchant проверяет заголовок окна торговца и при необходимости
// открывает его через меню
func (s *Shopper) enterMerchant(ctx context.Context, merchant string) error {
	log := s.deps.Logger
	if merchant == "" {
		return nil
	}
	if s.atMerchant(merchant) {
		log.Info("🏪 Окно торговца уже открыто")
		return nil
	}

	log.Info("🏪 Окно торговца не открыто, открываем через меню...")
	if err := s.press(s.deps.Keys.Menu); err != nil {
		return err
	}
	wait(ctx, s.deps.Delays.Menu)
	if err := s.deps.Regions.Click(region.MerchantMenu); err != nil {
		return err
	}
	wait(ctx, 2*s.deps.Delays.Menu)

	if !s.atMerchant(merchant) {
		return fmt.Errorf("%w: %w: заголовок %q не найден", region.ErrInteraction, ErrNotAtMerchant, merchant)
	}
	log.Info("✅ Окно торговца открыто")
	return nil
}

func (s *Shopper) atMerchant(merchant string) bool {
	lines, err := s.deps.Regions.ReadText(region.MerchantName)
	if err != nil {
		s.deps.Logger.Warn("⚠️ Не удалось прочитать заголовок окна: %v", err)
		return false
	}
	return strings.Contains(strings.Join(lines, ""), merchant)
}

// purchase прокручивает список до реликвии и покупает партию.
// false без ошибки означает запрошенную остановку.
func (s *Shopper) purchase(ctx context.Context, opts Options) (bool, error) {
	log := s.deps.Logger
	icon := scaleIcon(s.deps.RelicIcon, s.deps.Regions)

	for i := 1; i <= maxScrollAttempts; i++ {
		if ctx.Err() != nil || !s.running.Load() {
			return false, nil
		}
		if err := s.press(s.deps.Keys.Scroll); err != nil {
			return false, err
		}
		wait(ctx, s.deps.Delays.Scroll)

		shot, err := s.deps.Regions.Capture(region.RelicIcon)
		if err != nil {
			log.Warn("⚠️ Область иконки не захвачена: %v", err)
			continue
		}
		if _, score, ok := s.deps.Locator.Locate(shot, icon); !ok || score < s.deps.Threshold {
			continue
		}

		log.Info("🔎 Реликвия найдена после %d прокруток", i)
		if err := s.deps.Regions.Click(PurchaseButton(opts.Mode, opts.Version)); err != nil {
			return false, err
		}
		wait(ctx, s.deps.Delays.Purchase)
		if err := s.press(s.deps.Keys.Confirm); err != nil {
			return false, err
		}
		wait(ctx, 2*s.deps.Delays.Purchase)

		s.update(func(st *Stats) { st.Purchased += BatchSize })
		log.Info("💸 Куплено %d реликвий, всего: %d", BatchSize, s.Snapshot().Purchased)
		return true, nil
	}
	return false, fmt.Errorf("%w: %w: %d прокруток", region.ErrInteraction, ErrRelicNotFound, maxScrollAttempts)
}

// resolutionSource маппер, знающий разрешение игры
type resolutionSource interface {
	Resolution() (int, int)
}

// scaleIcon масштабирует шаблон из 1920x1080 к разрешению игры,
// оси независимы
func scaleIcon(icon image.Image, regions cleaner.Regions) image.Image {
	src, ok := regions.(resolutionSource)
	if !ok {
		return icon
	}
	w, h := src.Resolution()
	if w == region.BaseWidth && h == region.BaseHeight {
		return icon
	}
	tw := icon.Bounds().Dx() * w / region.BaseWidth
	th := icon.Bounds().Dy() * h / region.BaseHeight
	if tw < 1 || th < 1 {
		return icon
	}
	return imaging.Resize(icon, tw, th, imaging.Linear)
}

// processBatch проверяет купленную партию: годные остаются, негодные
// сразу продаются
func (s *Shopper) processBatch(ctx context.Context, opts Options) error {
	log := s.deps.Logger
	capture := func() (image.Image, error) {
		return s.deps.Regions.Capture(region.AffixList)
	}

	for i := 1; i <= BatchSize; i++ {
		if ctx.Err() != nil || !s.running.Load() {
			return nil
		}

		res, err := s.deps.Resolver.Resolve(ctx, capture, s.deps.Recognizer, opts.Mode)
		if ctx.Err() != nil {
			return nil
		}
		switch {
		case err != nil && cleaner.KindOf(err).Fatal():
			return err
		case err != nil || len(res.Affixes) == 0:
			s.update(func(st *Stats) { st.Failed++ })
			log.Error("[%d/%d] ❌ Свойства не распознаны: %v", i, BatchSize, err)
		default:
			if err := s.judge(i, opts, res); err != nil {
				return err
			}
		}

		if err := s.press(s.deps.Keys.NextItem); err != nil {
			return err
		}
		wait(ctx, s.deps.Delays.Item)
	}
	return nil
}

func (s *Shopper) judge(i int, opts Options, res affix.Result) error {
	log := s.deps.Logger
	texts := make([]string, 0, len(res.Affixes))
	for _, a := range res.Affixes {
		texts = append(texts, a.Text())
	}

	match := s.deps.Rules.Match(opts.Mode, res.Entries(), opts.RequireDoubleValid)
	if match.Qualified {
		s.mu.Lock()
		s.stats.Qualified++
		s.kept = append(s.kept, Relic{At: time.Now(), Affixes: res.Entries(), Reason: match.Reason})
		s.mu.Unlock()
		log.Info("[%d/%d] ✅ Годная реликвия: %s", i, BatchSize, strings.Join(texts, ", "))
		return nil
	}

	s.update(func(st *Stats) { st.Unqualified++ })
	if err := s.press(s.deps.Keys.Sell); err != nil {
		return err
	}
	s.update(func(st *Stats) { st.Sold++ })
	log.Info("[%d/%d] 💰 Продана негодная реликвия (%s): %s", i, BatchSize, match.Reason, strings.Join(texts, ", "))
	return nil
}

func (s *Shopper) press(key string) error {
	if err := s.deps.Input.PressKey(key); err != nil {
		return fmt.Errorf("%w: клавиша %s: %v", region.ErrInteraction, key, err)
	}
	return nil
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
