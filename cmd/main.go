package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"nrrelic/internal/config"
	"nrrelic/internal/logger"
)

// app общее состояние команд: конфигурация и логгер
type app struct {
	configPath string
	config     *config.Config
	logger     *logger.LoggerManager
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	err := rootCommand(a).ExecuteContext(ctx)
	if a.logger != nil {
		if err != nil {
			a.logger.LogError(err, "Команда завершилась с ошибкой")
		}
		a.logger.Close()
	}
	if err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func rootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "nrrelic",
		Short:         "Очистка инвентаря реликвий",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "путь к config.yaml")

	root.AddCommand(
		runCommand(a),
		recognizeCommand(a),
		presetsCommand(a),
		vocabCommand(a),
		statusCommand(a),
		actionCommand(a),
		shopCommand(a),
	)
	return root
}

func (a *app) init() error {
	c, err := config.InitConfig(a.configPath)
	if err != nil {
		return err
	}
	a.config = c

	// Инициализация логгера
	loggerManager, err := logger.NewLoggerManager(c.LogFilePath)
	if err != nil {
		return fmt.Errorf("ошибка инициализации логгера: %v", err)
	}
	a.logger = loggerManager
	return nil
}
