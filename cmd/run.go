package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"nrrelic/internal/affix"
	"nrrelic/internal/arduino"
	"nrrelic/internal/cleaner"
	"nrrelic/internal/click_manager"
	"nrrelic/internal/config"
	"nrrelic/internal/database"
	imageInternal "nrrelic/internal/image"
	"nrrelic/internal/interrupt"
	"nrrelic/internal/itemstate"
	"nrrelic/internal/metrics"
	"nrrelic/internal/ocr"
	"nrrelic/internal/preset"
	"nrrelic/internal/region"
	"nrrelic/internal/screenshot"
	"nrrelic/internal/vocabulary"
)

// Статусы, публикуемые в bot_status
const (
	statusIdle    = "idle"
	statusRunning = "running"
)

func runCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Ожидать горячих клавиш и очищать инвентарь",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context())
		},
	}
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// newRecognizer выбирает движок OCR. Возвращаемая функция освобождает ресурсы.
func newRecognizer(c *config.Config) (affix.Recognizer, func(), error) {
	if c.OCR.Engine == config.OCRExec {
		return ocr.NewExecRecognizer(c.OCR.Executable, 0), func() {}, nil
	}
	t, err := ocr.NewTesseractRecognizer(c.OCR.Language, c.OCR.Scale)
	if err != nil {
		return nil, nil, err
	}
	return t, func() { t.Close() }, nil
}

// sessionOptions параметры сессии из конфигурации
func sessionOptions(c *config.Config) (cleaner.Options, error) {
	mode, err := vocabulary.ParseMode(c.Mode)
	if err != nil {
		return cleaner.Options{}, err
	}
	opts := cleaner.Options{
		Mode:                  mode,
		Cleaning:              cleaner.CleaningMode(c.CleaningMode),
		AllowOperateFavorited: c.AllowOperateFavorited,
		RequireDoubleValid:    c.RequireDoubleValid,
		ApplyFilter:           c.ApplyFilter,
		FilterKeyword:         c.Filter.TitleKeyword,
	}
	if c.CountMode == config.CountManual {
		opts.MaxItems = c.MaxItems
	}
	return opts, nil
}

// rig общие зависимости команд, управляющих игрой: словарь, наборы,
// OCR, порт Arduino и маппер областей
type rig struct {
	vocab      *vocabulary.Store
	resolver   *affix.Resolver
	presets    *preset.Store
	recognizer affix.Recognizer
	clicks     *click_manager.ClickManager
	mapper     *region.Mapper
	closers    []func()
}

func (a *app) newRig() (*rig, error) {
	c, l := a.config, a.logger
	r := &rig{}
	ready := false
	defer func() {
		if !ready {
			r.Close()
		}
	}()

	r.vocab = vocabulary.NewStore(c.DataDir, l)
	rules, err := vocabulary.LoadMergeRules(filepath.Join(c.DataDir, vocabulary.MergeRulesFile))
	if err != nil {
		return nil, err
	}
	r.resolver = affix.NewResolver(r.vocab, rules, l)

	if r.presets, err = preset.NewStore(c.PresetsFile, l); err != nil {
		return nil, err
	}

	shots := screenshot.NewScreenshotManager(l, c.DebugDir, c.SaveAllScreenshots == 1)
	var window region.WindowLocator = imageInternal.FixedOrigin(c.WindowOffset)
	if c.FindWindow {
		window = imageInternal.NewWindowInitializer(c.WindowTopOffset, shots.CaptureFullScreen)
	}

	recognizer, closeRecognizer, err := newRecognizer(c)
	if err != nil {
		return nil, err
	}
	r.recognizer = recognizer
	r.closers = append(r.closers, closeRecognizer)

	// Инициализация порта с использованием значений из конфигурации
	port, err := arduino.InitializePort(c.Port, c.BaudRate)
	if err != nil {
		return nil, err
	}
	r.closers = append(r.closers, func() {
		if err := port.Close(); err != nil {
			l.LogError(err, "Error closing port")
		}
	})
	controller := arduino.NewController(port, ms(c.Delays.KeyPress))
	r.clicks = click_manager.NewClickManager(controller, click_manager.Delays{
		AfterKey:   ms(c.Delays.KeyPress),
		AfterClick: ms(c.Delays.KeyPress),
	}, l)

	w, h := c.Resolution()
	r.mapper = region.NewMapper(w, h, window, shots, r.clicks, recognizer)
	ready = true
	return r, nil
}

// Close освобождает ресурсы в обратном порядке
func (r *rig) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

func (a *app) run(ctx context.Context) error {
	c, l := a.config, a.logger
	l.Info("🚀 Запуск очистки инвентаря")

	opts, err := sessionOptions(c)
	if err != nil {
		return err
	}

	r, err := a.newRig()
	if err != nil {
		return err
	}
	defer r.Close()

	templates, err := itemstate.LoadTemplates(c.Templates.Favorited, c.Templates.Equipped, c.Templates.Official)
	if err != nil {
		return err
	}
	detector := itemstate.NewDetector(imageInternal.NewTemplateMatcher(1), templates, c.Templates.Threshold)

	var observers []cleaner.Observer
	registry := prometheus.NewRegistry()
	if c.MetricsListen != "" {
		m, err := metrics.NewCleanerMetrics(registry)
		if err != nil {
			return err
		}
		observers = append(observers, m)
	}

	var dbManager *database.DatabaseManager
	if c.SaveToDB == 1 {
		db, err := database.Open(c.DatabaseDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		l.Info("✅ Успешное подключение к базе данных")

		dbManager = database.NewDatabaseManager(db, l)
		if err := dbManager.EnsureSchema(ctx); err != nil {
			return err
		}
		defer dbManager.WaitForAsyncOperations()
		observers = append(observers, database.NewRecorder(dbManager))
	}

	cl := cleaner.New(cleaner.Deps{
		Vocabulary: r.vocab,
		Resolver:   r.resolver,
		Recognizer: r.recognizer,
		Rules:      r.presets,
		Detector:   detector,
		Regions:    r.mapper,
		Input:      r.clicks,
		Logger:     l,
		Keys: cleaner.Keys{
			MarkSale:       c.Keys.MarkSale,
			ToggleFavorite: c.Keys.ToggleFavorite,
			NextItem:       c.Keys.NextItem,
			OpenSale:       c.Keys.OpenSale,
			ConfirmSale:    c.Keys.ConfirmSale,
		},
		Delays: cleaner.Delays{
			Startup:     ms(c.Delays.Startup),
			AfterAction: ms(c.Delays.AfterAction),
			Confirm:     ms(c.Delays.Confirm),
			Filter:      ms(c.Delays.Filter),
		},
		Observers: observers,
	})

	interruptManager := interrupt.NewInterruptManager(l)
	remote := make(chan string, 1)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return interruptManager.Run(gctx)
	})
	g.Go(func() error {
		return supervise(gctx, cl, opts, interruptManager, remote, dbManager, a)
	})
	g.Go(func() error {
		return r.presets.Watch(gctx, nil)
	})
	if dbManager != nil {
		g.Go(func() error {
			return dbManager.PollActions(gctx, time.Duration(c.StatusPollSeconds)*time.Second, func(action string) {
				select {
				case remote <- action:
				default:
				}
			})
		})
	}
	if c.MetricsListen != "" {
		g.Go(func() error {
			return metrics.Serve(gctx, c.MetricsListen, registry, l)
		})
	}

	l.Info("⏸️ Программа готова к работе. Shift+Enter запуск, F11 остановка")
	err = g.Wait()
	l.Info("👋 Завершение работы")
	return err
}

// supervise запускает и останавливает сессии по горячим клавишам и
// удаленным командам, пока не отменен ctx
func supervise(ctx context.Context, cl *cleaner.Cleaner, opts cleaner.Options, im *interrupt.InterruptManager,
	remote <-chan string, db *database.DatabaseManager, a *app) error {
	l := a.logger
	finished := make(chan cleaner.Summary, 1)

	publish := func(status string) {
		if db == nil {
			return
		}
		sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.UpdateStatus(sctx, status); err != nil {
			l.LogError(err, "Ошибка публикации статуса")
		}
	}

	start := func() {
		if err := cl.Start(ctx, opts); err != nil {
			l.LogError(err, "Не удалось запустить очистку")
			return
		}
		im.SetScriptRunning(true)
		publish(statusRunning)
		l.Info("🚀 Очистка запущена. Для остановки нажмите F11")
		go func() { finished <- cl.Wait() }()
	}

	publish(statusIdle)
	for {
		select {
		case <-ctx.Done():
			if cl.Active() {
				cl.Stop()
				<-finished
			}
			return nil
		case <-im.GetScriptStartChan():
			start()
		case <-im.GetScriptInterruptChan():
			cl.Stop()
		case action := <-remote:
			switch strings.ToLower(action) {
			case database.ActionStop:
				if cl.Running() {
					l.Info("🛑 Получена удаленная команда остановки")
					cl.Stop()
				}
			case database.ActionStart:
				if !cl.Active() {
					l.Info("📡 Получена удаленная команда запуска")
					start()
				}
			default:
				l.Warn("⚠️ Неизвестная удаленная команда: %s", action)
			}
		case s := <-finished:
			im.SetScriptRunning(false)
			publish(statusIdle)
			report(a, s)
		}
	}
}

func report(a *app, s cleaner.Summary) {
	st := s.Stats
	a.logger.Info("✅ Сессия %s завершена за %s: найдено %d, годных %d, негодных %d, пропущено %d, продано %d",
		s.SessionID, s.Duration.Round(time.Second), st.TotalDetected, st.Qualified, st.Unqualified, st.Skipped, st.Sold)
	if s.Err != nil {
		a.logger.Error("❌ %s: %v", s.Kind, s.Err)
	}
	fmt.Println("Нажмите Shift+Enter для повторного запуска")
}
