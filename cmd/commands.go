package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"nrrelic/internal/affix"
	"nrrelic/internal/database"
	"nrrelic/internal/preset"
	"nrrelic/internal/vocabulary"
)

func recognizeCommand(a *app) *cobra.Command {
	var modeFlag string
	cmd := &cobra.Command{
		Use:   "recognize <image>...",
		Short: "Распознать свойства на снимках и проверить их наборами",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.config
			if modeFlag == "" {
				modeFlag = c.Mode
			}
			mode, err := vocabulary.ParseMode(modeFlag)
			if err != nil {
				return err
			}

			vocab := vocabulary.NewStore(c.DataDir, a.logger)
			if err := vocab.Load(mode); err != nil {
				return err
			}
			rules, err := vocabulary.LoadMergeRules(filepath.Join(c.DataDir, vocabulary.MergeRulesFile))
			if err != nil {
				return err
			}
			resolver := affix.NewResolver(vocab, rules, a.logger)
			presets, err := preset.NewStore(c.PresetsFile, a.logger)
			if err != nil {
				return err
			}
			recognizer, closeRecognizer, err := newRecognizer(c)
			if err != nil {
				return err
			}
			defer closeRecognizer()

			out := cmd.OutOrStdout()
			for _, path := range args {
				img, err := imaging.Open(path)
				if err != nil {
					fmt.Fprintf(out, "❌ %s: %v\n", path, err)
					continue
				}
				lines, err := recognizer.Recognize(img)
				if err != nil {
					fmt.Fprintf(out, "❌ %s: %v\n", path, err)
					continue
				}
				res, err := resolver.ResolveLines(mode, lines)
				if err != nil {
					return err
				}
				printResult(out, path, res, presets.Match(mode, res.Entries(), c.RequireDoubleValid))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&modeFlag, "mode", "m", "", "режим: normal или deepnight")
	return cmd
}

func printResult(out io.Writer, path string, res affix.Result, m preset.MatchResult) {
	fmt.Fprintf(out, "\n--- %s ---\n", path)
	for _, a := range res.Affixes {
		sign := "+"
		if !a.IsPositive() {
			sign = "-"
		}
		fmt.Fprintf(out, "  %s %s (%.2f)\n", sign, a.Text(), a.Candidate.Confidence)
	}
	for _, u := range res.Unresolved {
		fmt.Fprintf(out, "  ? %s (%.2f)\n", u.Text, u.Confidence)
	}
	verdict := "негоден"
	if m.Qualified {
		verdict = "годен"
	}
	fmt.Fprintf(out, "Итог: %s (%s)\n", verdict, m.Reason)
}

func presetsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "Наборы правил",
	}
	open := func() (*preset.Store, error) {
		return preset.NewStore(a.config.PresetsFile, a.logger)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Показать наборы",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range store.All() {
				kind := "выделенный"
				if r.IsGeneral {
					kind = "общий"
				}
				state := " "
				if r.IsActive {
					state = "*"
				}
				fmt.Fprintf(out, "%s %-20s %-10s %-36s %s\n", state, r.Category, kind, r.ID, r.Name)
				fmt.Fprintf(out, "    %s\n", strings.Join(r.Affixes, ", "))
			}
			return nil
		},
	}, &cobra.Command{
		Use:   "export [file]",
		Short: "Выгрузить наборы в JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			if len(args) == 0 {
				return store.Export(cmd.OutOrStdout())
			}
			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("ошибка создания файла: %v", err)
			}
			defer f.Close()
			if err := store.Export(f); err != nil {
				return err
			}
			a.logger.Info("📤 Наборы выгружены в %s", args[0])
			return nil
		},
	}, &cobra.Command{
		Use:   "import <file>",
		Short: "Заменить наборы содержимым файла",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("ошибка открытия файла: %v", err)
			}
			defer f.Close()
			if err := store.Import(f); err != nil {
				return err
			}
			a.logger.Info("📥 Наборы загружены из %s, копия: %s", args[0], store.BackupPath())
			return nil
		},
	}, &cobra.Command{
		Use:   "restore",
		Short: "Вернуть наборы из резервной копии",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			return store.RestoreBackup()
		},
	})
	return cmd
}

func vocabCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "vocab [normal_whitelist|deepnight_whitelist|deepnight_blacklist]",
		Short: "Проверить словари или показать записи категории",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := vocabulary.NewStore(a.config.DataDir, a.logger)
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				entries, err := store.LoadEditing(vocabulary.Category(args[0]))
				if err != nil {
					return err
				}
				for _, e := range entries {
					fmt.Fprintln(out, e)
				}
				return nil
			}
			for _, mode := range []vocabulary.Mode{vocabulary.Normal, vocabulary.Deepnight} {
				if err := store.Load(mode); err != nil {
					return err
				}
				lease, err := store.Acquire(mode)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %d записей\n", mode, lease.Table().Len())
				lease.Release()
			}
			return nil
		},
	}
}

func openDatabase(a *app) (*database.DatabaseManager, func(), error) {
	db, err := database.Open(a.config.DatabaseDSN)
	if err != nil {
		return nil, nil, err
	}
	return database.NewDatabaseManager(db, a.logger), func() { db.Close() }, nil
}

func statusCommand(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "status [new_status]",
		Short: "Показать или обновить статус бота",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, closeDB, err := openDatabase(a)
			if err != nil {
				return err
			}
			defer closeDB()
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				if err := m.UpdateStatus(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(out, "Статус обновлен на: %s\n", args[0])
				return nil
			}

			status, actions, err := m.GetStatusAndActions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Текущий статус: %s (обновлен: %s)\n", status.CurrentStatus, status.UpdatedAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintln(out, "Последние действия:")
			for _, action := range actions {
				done := ""
				if action.Processed {
					done = " ✓"
				}
				fmt.Fprintf(out, "  - %s (%s)%s\n", action.Action, action.CreatedAt.Format("2006-01-02 15:04:05"), done)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "число последних действий")
	return cmd
}

func actionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "action <stop|start>",
		Short:     "Отправить удаленную команду запущенному боту",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{database.ActionStop, database.ActionStart},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := strings.ToLower(args[0])
			if action != database.ActionStop && action != database.ActionStart {
				return fmt.Errorf("неизвестное действие: %s", args[0])
			}
			m, closeDB, err := openDatabase(a)
			if err != nil {
				return err
			}
			defer closeDB()
			if err := m.AddAction(cmd.Context(), action); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Действие добавлено: %s\n", action)
			return nil
		},
	}
}
