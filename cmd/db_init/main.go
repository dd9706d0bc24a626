package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/cobra"

	"nrrelic/internal/config"
	"nrrelic/internal/database"
)

func main() {
	var configPath string
	var reset bool

	cmd := &cobra.Command{
		Use:   "db_init",
		Short: "Создать базу и таблицы для сессий очистки",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.InitConfig(configPath)
			if err != nil {
				return err
			}
			return initDatabase(cmd.Context(), c.DatabaseDSN, reset)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "путь к config.yaml")
	cmd.Flags().BoolVar(&reset, "reset", false, "удалить базу перед созданием")

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func initDatabase(ctx context.Context, dsn string, reset bool) error {
	cfg, err := database.ParseDSN(dsn)
	if err != nil {
		return err
	}
	name := cfg.DBName
	if name == "" {
		return fmt.Errorf("в database_dsn не указана база")
	}

	// Подключаемся к MySQL без указания базы
	server := cfg.Clone()
	server.DBName = ""
	connector, err := mysql.NewConnector(server)
	if err != nil {
		return fmt.Errorf("ошибка подключения к MySQL: %v", err)
	}
	db := sql.OpenDB(connector)
	defer db.Close()

	if reset {
		if _, err := db.ExecContext(ctx, "DROP DATABASE IF EXISTS `"+name+"`"); err != nil {
			return fmt.Errorf("ошибка удаления базы: %v", err)
		}
		fmt.Printf("База данных %s удалена (если была)\n", name)
	}

	if _, err := db.ExecContext(ctx, "CREATE DATABASE IF NOT EXISTS `"+name+"` CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci"); err != nil {
		return fmt.Errorf("ошибка создания базы: %v", err)
	}
	fmt.Printf("База данных %s готова\n", name)

	// Подключаемся к новой базе
	db2, err := database.Open(dsn)
	if err != nil {
		return err
	}
	defer db2.Close()

	for _, stmt := range database.Schema {
		if _, err := db2.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ошибка создания таблицы: %v", err)
		}
	}
	fmt.Println("Инициализация базы завершена!")
	return nil
}
