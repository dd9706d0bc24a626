package cleaner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"nrrelic/internal/affix"
	"nrrelic/internal/region"
	"nrrelic/internal/vocabulary"
)

// session состояние одного прогона
type session struct {
	id      string
	opts    Options
	started time.Time
	target  int
	index   int

	lastFingerprint string
	lastAdvanceKey  string
}

const pollInterval = 100 * time.Millisecond

func (c *Cleaner) run(ctx context.Context, s *session, done chan struct{}) {
	var summary Summary
	defer func() { c.finish(s, summary, done) }()

	log := c.deps.Logger
	log.Info("🚀 Запуск очистки: режим=%s, очистка=%s, избранные=%v, два совпадения=%v",
		s.opts.Mode, s.opts.Cleaning, s.opts.AllowOperateFavorited, s.opts.RequireDoubleValid)

	if err := c.setup(ctx, s); err != nil {
		summary.Err = err
		summary.Kind = KindOf(err)
		c.setState(Stopping)
		log.Error("⛔ Очистка прервана при подготовке: %s: %v", summary.Kind, err)
		return
	}
	summary.Target = s.target

	for _, o := range c.deps.Observers {
		o.SessionStarted(SessionInfo{SessionID: s.id, Options: s.opts, Target: s.target, StartedAt: s.started})
	}

	exhausted, err := c.loop(ctx, s)
	c.setState(Stopping)
	summary.Exhausted = exhausted
	if err != nil {
		summary.Err = err
		summary.Kind = KindOf(err)
		log.Error("⛔ Очистка остановлена: %s: %v", summary.Kind, err)
	}

	if exhausted {
		log.Info("✅ Очистка завершена: обработано %d предметов", s.target)
	} else {
		log.Info("🛑 Очистка остановлена")
	}
	c.logStats()
	c.terminate(ctx, s, exhausted, &summary)
}

// setup загрузка словаря, проверка наборов, фильтр и число предметов
func (c *Cleaner) setup(ctx context.Context, s *session) error {
	log := c.deps.Logger

	if c.deps.Delays.Startup > 0 {
		log.Info("⏳ Ожидание %v, переключитесь на экран реликвий...", c.deps.Delays.Startup)
		c.waitRunning(ctx, c.deps.Delays.Startup)
	}
	if !c.running.Load() || ctx.Err() != nil {
		return nil
	}

	if err := c.deps.Vocabulary.Load(s.opts.Mode); err != nil {
		return err
	}
	if err := c.deps.Rules.Reload(); err != nil {
		return err
	}

	if s.opts.ApplyFilter {
		c.setState(Filtering)
		if err := c.applyFilter(ctx, s.opts); err != nil {
			log.Warn("⚠️ Фильтр не применен: %v", err)
			log.Warn("⚠️ Проверьте, что открыт экран реликвий и окно игры найдено")
			return err
		}
		log.Info("✅ Фильтр применен")
	}

	s.target = s.opts.MaxItems
	if s.target == 0 {
		n, err := c.deps.Regions.DetectCount(region.ItemCount)
		if err != nil || n <= 0 {
			log.Warn("⚠️ Не удалось определить число предметов (%v), используем %d", err, DefaultItemCount)
			n = DefaultItemCount
		} else {
			log.Info("🔢 Найдено предметов: %d", n)
		}
		s.target = n
	}
	return nil
}

// applyFilter открывает фильтр, проверяет заголовок и выбирает режим
func (c *Cleaner) applyFilter(ctx context.Context, opts Options) error {
	if err := c.deps.Regions.Click(region.FilterButton); err != nil {
		return err
	}
	wait(ctx, c.deps.Delays.Filter)

	lines, err := c.deps.Regions.ReadText(region.FilterTitle)
	if err != nil {
		return err
	}
	title := strings.Join(lines, "")
	if opts.FilterKeyword != "" && !strings.Contains(title, opts.FilterKeyword) {
		return fmt.Errorf("%w: окно фильтра не найдено, прочитано %q", region.ErrInteraction, title)
	}

	option := region.FilterNormal
	if opts.Mode == vocabulary.Deepnight {
		option = region.FilterDeepnight
	}
	if err := c.deps.Regions.Click(option); err != nil {
		return err
	}
	wait(ctx, c.deps.Delays.Filter)

	if err := c.deps.Regions.Click(region.FilterButton); err != nil {
		return err
	}
	wait(ctx, c.deps.Delays.Filter)
	return nil
}

// loop обрабатывает предметы, пока не исчерпан счетчик или не запрошена
// остановка. Возвращает true, если счетчик исчерпан.
func (c *Cleaner) loop(ctx context.Context, s *session) (bool, error) {
	failures := 0
	for {
		if ctx.Err() != nil {
			c.running.Store(false)
		}
		if !c.running.Load() {
			return false, nil
		}
		if c.paused.Load() {
			wait(ctx, pollInterval)
			continue
		}
		if c.Snapshot().TotalDetected >= s.target {
			return true, nil
		}

		s.index++
		err := c.processItem(ctx, s)
		switch {
		case err == nil:
			failures = 0
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			c.running.Store(false)
			return false, nil
		case KindOf(err).Fatal():
			return false, err
		default:
			failures++
			if failures >= maxInteractionFailures {
				return false, fmt.Errorf("%w: %d сбоев подряд: %v", region.ErrInteraction, failures, err)
			}
		}
	}
}

func (c *Cleaner) processItem(ctx context.Context, s *session) error {
	log := c.deps.Logger
	started := time.Now()

	c.setState(Detecting)
	grid, err := c.deps.Regions.Capture(region.ItemFrame)
	if err != nil {
		c.logItemError(s.index, err)
		c.advance(ctx, s)
		return err
	}
	state := c.deps.Detector.Detect(grid)
	c.updateStats(func(st *Stats) { st.TotalDetected++ })
	ev := ItemEvent{SessionID: s.id, Index: s.index, State: state}
	log.Info("[#%d] 🔍 Состояние: %s", s.index, state)

	if ShouldSkip(state, s.opts.Cleaning, s.opts.AllowOperateFavorited) {
		c.updateStats(func(st *Stats) { st.Skipped++ })
		log.Info("[#%d] ⏭️ Пропуск", s.index)
		ev.Skipped = true
		ev.Action = ActionSkip
		ev.Duration = time.Since(started)
		c.emit(ev)
		c.advance(ctx, s)
		return nil
	}

	c.setState(Recognizing)
	res, err := c.resolve(ctx, s.opts.Mode)
	if err != nil {
		c.logItemError(s.index, err)
		kind := KindOf(err)
		if kind != KindRecognitionFailure || ctx.Err() != nil {
			return err
		}
		// без свойств предмет считается негодным
		ev.Kind = kind
		ev.Err = err
	}

	fp := res.Fingerprint()
	if fp != "" && fp == s.lastFingerprint {
		ev.Duplicate = true
		ev.Action = ActionDuplicate
		c.recoverDuplicate(ctx, s, fp)
		ev.Duration = time.Since(started)
		c.emit(ev)
		return nil
	}
	s.lastFingerprint = fp

	log.Info("[#%d] 📜 Свойств: %d положительных, %d отрицательных", s.index, res.Positive(), res.Negative())
	for _, a := range res.Affixes {
		sign := "+"
		if !a.IsPositive() {
			sign = "-"
		}
		log.Info("[#%d]   [%s] %s (%.2f)", s.index, sign, a.Text(), a.Candidate.Confidence)
	}

	c.setState(Deciding)
	match := c.deps.Rules.Match(s.opts.Mode, res.Entries(), s.opts.RequireDoubleValid)
	ev.Affixes = res.Affixes
	ev.Match = match
	if match.Qualified {
		c.updateStats(func(st *Stats) { st.Qualified++ })
		log.Info("[#%d] ✅ Годен (%s)", s.index, match.Reason)
	} else {
		c.updateStats(func(st *Stats) { st.Unqualified++ })
		log.Info("[#%d] ❌ Не годен (%s)", s.index, match.Reason)
	}

	c.setState(Acting)
	plan := Decide(state, match.Qualified, s.opts.Cleaning, c.deps.Keys)
	ev.Action = plan.Action
	for _, key := range plan.Keys {
		if err := c.deps.Input.PressKey(key); err != nil {
			err = fmt.Errorf("%w: клавиша %s: %v", region.ErrInteraction, key, err)
			c.logItemError(s.index, err)
			ev.Kind = KindOf(err)
			ev.Err = err
			ev.Duration = time.Since(started)
			c.emit(ev)
			c.advance(ctx, s)
			return err
		}
	}
	c.updateStats(func(st *Stats) {
		st.Sold += plan.Sold
		st.Favorited += plan.Favorited
		st.Unfavorited += plan.Unfavorited
		st.Pending += plan.Pending
	})
	if plan.Action != ActionKeep {
		log.Info("[#%d] 🎯 Действие: %s", s.index, plan.Action)
	}
	ev.Duration = time.Since(started)
	c.emit(ev)

	if plan.Advanced {
		s.lastAdvanceKey = c.deps.Keys.MarkSale
		wait(ctx, c.deps.Delays.AfterAction)
		return nil
	}
	c.advance(ctx, s)
	return nil
}

func (c *Cleaner) resolve(ctx context.Context, mode vocabulary.Mode) (affix.Result, error) {
	capture := func() (image.Image, error) {
		return c.deps.Regions.Capture(region.AffixList)
	}
	return c.deps.Resolver.Resolve(ctx, capture, c.deps.Recognizer, mode)
}

// recoverDuplicate игра не отреагировала на прошлое действие: повторяем
// его и, если предмет не сменился, уходим вправо
func (c *Cleaner) recoverDuplicate(ctx context.Context, s *session, fp string) {
	log := c.deps.Logger
	log.Warn("[#%d] ⚠️ Тот же предмет, что и предыдущий: %s", s.index, fp)
	c.updateStats(func(st *Stats) { st.TotalDetected-- })
	s.lastFingerprint = ""

	if s.lastAdvanceKey == "" || s.lastAdvanceKey == c.deps.Keys.NextItem {
		c.advance(ctx, s)
		return
	}

	if err := c.deps.Input.PressKey(s.lastAdvanceKey); err != nil {
		c.logItemError(s.index, err)
		c.advance(ctx, s)
		return
	}
	wait(ctx, c.deps.Delays.AfterAction)

	retry, err := c.resolve(ctx, s.opts.Mode)
	switch {
	case err != nil:
		log.Warn("[#%d] ⚠️ Повторное распознавание не удалось, переходим дальше", s.index)
		c.advance(ctx, s)
	case retry.Fingerprint() == fp:
		log.Warn("[#%d] ⚠️ Предмет не продается, переходим дальше", s.index)
		c.advance(ctx, s)
	default:
		log.Info("[#%d] ✅ Повтор помог, курсор сдвинулся", s.index)
	}
}

// advance переход к следующему предмету
func (c *Cleaner) advance(ctx context.Context, s *session) {
	c.setState(Advancing)
	s.lastAdvanceKey = c.deps.Keys.NextItem
	if err := c.deps.Input.PressKey(c.deps.Keys.NextItem); err != nil {
		c.logItemError(s.index, fmt.Errorf("%w: клавиша %s: %v", region.ErrInteraction, c.deps.Keys.NextItem, err))
	}
	wait(ctx, c.deps.Delays.AfterAction)
}

// terminate подтверждает продажу, если очистка дошла до конца сама,
// иначе просит игрока завершить продажу вручную
func (c *Cleaner) terminate(ctx context.Context, s *session, exhausted bool, summary *Summary) {
	log := c.deps.Logger
	pending := c.Snapshot().Pending
	if pending == 0 || s.opts.Cleaning != Sell {
		return
	}

	if exhausted && c.running.Load() {
		log.Info("💰 Подтверждение продажи (%d предметов)...", pending)
		err := c.deps.Input.PressKey(c.deps.Keys.OpenSale)
		if err == nil {
			wait(ctx, c.deps.Delays.Confirm)
			err = c.deps.Input.PressKey(c.deps.Keys.ConfirmSale)
			wait(ctx, c.deps.Delays.Confirm)
		}
		if err == nil {
			c.updateStats(func(st *Stats) { st.Pending = 0 })
			summary.Confirmed = true
			log.Info("✅ Продажа подтверждена")
			return
		}
		log.LogError(err, "Ошибка подтверждения продажи")
	}

	summary.ManualCompletion = true
	log.Warn("==================================================")
	log.Warn("⚠️ Очистка остановлена вручную")
	log.Warn("⚠️ В игре помечено к продаже предметов: %d", pending)
	log.Warn("⚠️ Завершите продажу вручную: нажмите %s, затем %s",
		strings.ToUpper(c.deps.Keys.OpenSale), strings.ToUpper(c.deps.Keys.ConfirmSale))
	log.Warn("==================================================")
}

func (c *Cleaner) logItemError(index int, err error) {
	c.deps.Logger.Error("[#%d] %s: %v", index, KindOf(err), err)
}

func (c *Cleaner) emit(ev ItemEvent) {
	for _, o := range c.deps.Observers {
		o.ItemProcessed(ev)
	}
}

func (c *Cleaner) logStats() {
	st := c.Snapshot()
	log := c.deps.Logger
	log.Info("==================================================")
	log.Info("📊 Всего: %d | годных: %d | негодных: %d | пропущено: %d", st.TotalDetected, st.Qualified, st.Unqualified, st.Skipped)
	log.Info("📊 Продано: %d | в избранное: %d | из избранного: %d", st.Sold, st.Favorited, st.Unfavorited)
	log.Info("==================================================")
}

// waitRunning ждет d, пока сессия не остановлена
func (c *Cleaner) waitRunning(ctx context.Context, d time.Duration) {
	deadline := time.Now().Add(d)
	for c.running.Load() && ctx.Err() == nil {
		left := time.Until(deadline)
		if left <= 0 {
			return
		}
		wait(ctx, min(left, pollInterval))
	}
}
