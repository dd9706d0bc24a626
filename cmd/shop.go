package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"nrrelic/internal/config"
	imageInternal "nrrelic/internal/image"
	"nrrelic/internal/interrupt"
	"nrrelic/internal/region"
	"nrrelic/internal/shop"
	"nrrelic/internal/vocabulary"
)

func shopCommand(a *app) *cobra.Command {
	var version string
	var limit, floor int
	cmd := &cobra.Command{
		Use:   "shop",
		Short: "Покупать реликвии у торговца и сразу продавать негодные",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.config
			if cmd.Flags().Changed("version") {
				c.Shop.Version = version
			}
			if cmd.Flags().Changed("limit") {
				c.Shop.Limit = limit
			}
			if cmd.Flags().Changed("currency-floor") {
				c.Shop.CurrencyFloor = floor
			}
			if err := c.Validate(); err != nil {
				return err
			}
			return a.shop(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "поколение реликвий: new или old")
	cmd.Flags().IntVar(&limit, "limit", 0, "остановиться после стольких купленных реликвий")
	cmd.Flags().IntVar(&floor, "currency-floor", 0, "остановиться, когда валюты останется не больше")
	return cmd
}

// shopOptions параметры покупок из конфигурации
func shopOptions(c *config.Config) (shop.Options, error) {
	mode, err := vocabulary.ParseMode(c.Mode)
	if err != nil {
		return shop.Options{}, err
	}
	version, err := shop.ParseVersion(c.Shop.Version)
	if err != nil {
		return shop.Options{}, err
	}
	return shop.Options{
		Mode:               mode,
		Version:            version,
		RequireDoubleValid: c.RequireDoubleValid,
		Limit:              c.Shop.Limit,
		CurrencyFloor:      c.Shop.CurrencyFloor,
		Merchant:           c.Shop.Merchant,
	}, nil
}

// defineCurrencyRegion переносит координаты счетчика валюты из конфигурации
func defineCurrencyRegion(c *config.Config) {
	if cr := c.Shop.CurrencyRegion; len(cr) == 4 {
		region.Define(region.Currency, region.Region{Left: cr[0], Top: cr[1], Right: cr[2], Bottom: cr[3]})
	}
}

func (a *app) shop(ctx context.Context) error {
	c, l := a.config, a.logger
	l.Info("🛒 Запуск покупок у торговца")

	opts, err := shopOptions(c)
	if err != nil {
		return err
	}
	defineCurrencyRegion(c)

	icon, err := imaging.Open(c.Shop.RelicTemplate)
	if err != nil {
		return fmt.Errorf("ошибка загрузки шаблона реликвии: %v", err)
	}

	r, err := a.newRig()
	if err != nil {
		return err
	}
	defer r.Close()

	shopper := shop.New(shop.Deps{
		Vocabulary: r.vocab,
		Resolver:   r.resolver,
		Recognizer: r.recognizer,
		Rules:      r.presets,
		Regions:    r.mapper,
		Input:      r.clicks,
		Locator:    imageInternal.NewTemplateMatcher(1),
		RelicIcon:  icon,
		Threshold:  c.Templates.Threshold,
		Logger:     l,
		Keys: shop.Keys{
			Menu:     c.Shop.MenuKey,
			Scroll:   c.Shop.ScrollKey,
			Confirm:  c.Keys.ConfirmSale,
			Sell:     c.Keys.MarkSale,
			NextItem: c.Keys.NextItem,
			Close:    c.Shop.CloseKey,
		},
		Delays: shop.Delays{
			Menu:     ms(c.Shop.MenuDelay),
			Scroll:   ms(c.Shop.ScrollDelay),
			Purchase: ms(c.Shop.PurchaseDelay),
			Item:     ms(c.Shop.ItemDelay),
			Close:    ms(c.Delays.Confirm),
		},
	})

	im := interrupt.NewInterruptManager(l)
	g, gctx := errgroup.WithContext(ctx)
	hooksCtx, stopHooks := context.WithCancel(gctx)
	g.Go(func() error {
		return im.Run(hooksCtx)
	})
	g.Go(func() error {
		defer stopHooks()
		l.Info("⏳ Ожидание %v, переключитесь на окно игры...", ms(c.Delays.Startup))
		select {
		case <-gctx.Done():
			return nil
		case <-time.After(ms(c.Delays.Startup)):
		}

		im.SetScriptRunning(true)
		defer im.SetScriptRunning(false)
		l.Info("🚀 Покупки запущены. Для остановки нажмите F11")

		done := make(chan shop.Summary, 1)
		go func() { done <- shopper.Run(gctx, opts) }()
		for {
			select {
			case <-im.GetScriptInterruptChan():
				shopper.Stop()
			case s := <-done:
				reportShop(a, s)
				return s.Err
			}
		}
	})
	return g.Wait()
}

func reportShop(a *app, s shop.Summary) {
	st := s.Stats
	a.logger.Info("✅ Покупки завершены за %s (%s): куплено %d, годных %d, продано %d",
		s.Duration.Round(time.Second), s.Stopped, st.Purchased, st.Qualified, st.Sold)
	for i, relic := range s.Kept {
		texts := make([]string, 0, len(relic.Affixes))
		for _, e := range relic.Affixes {
			texts = append(texts, e.Text)
		}
		fmt.Printf("%d. [%s] %s (%s)\n", i+1, relic.At.Format("2006-01-02 15:04:05"), strings.Join(texts, ", "), relic.Reason)
	}
}
