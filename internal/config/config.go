package config

import (
	"fmt"
	"image"
	"strings"

	"github.com/spf13/viper"
)

// Режимы очистки
const (
	CleaningSell     = "sell"
	CleaningFavorite = "favorite"
)

// Способы определения числа предметов
const (
	CountAuto   = "auto"
	CountManual = "manual"
)

// Движки OCR
const (
	OCRTesseract = "tesseract"
	OCRExec      = "exec"
)

// OCR настройки распознавания
type OCR struct {
	Engine     string  `mapstructure:"engine"`
	Language   string  `mapstructure:"language"`
	Executable string  `mapstructure:"executable"`
	Scale      float64 `mapstructure:"scale"`
}

// Templates пути к иконкам состояний и порог совпадения
type Templates struct {
	Favorited string  `mapstructure:"favorited"`
	Equipped  string  `mapstructure:"equipped"`
	Official  string  `mapstructure:"official"`
	Threshold float64 `mapstructure:"threshold"`
}

// Keys клавиши игровых действий
type Keys struct {
	MarkSale       string `mapstructure:"mark_sale"`
	ToggleFavorite string `mapstructure:"toggle_favorite"`
	NextItem       string `mapstructure:"next_item"`
	OpenSale       string `mapstructure:"open_sale"`
	ConfirmSale    string `mapstructure:"confirm_sale"`
}

// Delays паузы в миллисекундах
type Delays struct {
	Startup     int `mapstructure:"startup"`
	KeyPress    int `mapstructure:"key_press"`
	AfterAction int `mapstructure:"after_action"`
	Confirm     int `mapstructure:"confirm"`
	Filter      int `mapstructure:"filter"`
}

// Filter проверка и применение фильтра инвентаря
type Filter struct {
	TitleKeyword string `mapstructure:"title_keyword"`
}

// Shop покупка реликвий у торговца
type Shop struct {
	Version        string `mapstructure:"version"`
	Limit          int    `mapstructure:"limit"`
	CurrencyFloor  int    `mapstructure:"currency_floor"`
	CurrencyRegion []int  `mapstructure:"currency_region"`
	Merchant       string `mapstructure:"merchant"`
	RelicTemplate  string `mapstructure:"relic_template"`
	MenuKey        string `mapstructure:"menu_key"`
	ScrollKey      string `mapstructure:"scroll_key"`
	CloseKey       string `mapstructure:"close_key"`
	MenuDelay      int    `mapstructure:"menu_delay"`
	ScrollDelay    int    `mapstructure:"scroll_delay"`
	PurchaseDelay  int    `mapstructure:"purchase_delay"`
	ItemDelay      int    `mapstructure:"item_delay"`
}

// Основная структура конфигурации
type Config struct {
	GameResolution        []int       `mapstructure:"game_resolution"`
	AllowOperateFavorited bool        `mapstructure:"allow_operate_favorited"`
	RequireDoubleValid    bool        `mapstructure:"require_double_valid"`
	CleaningMode          string      `mapstructure:"cleaning_mode"`
	Mode                  string      `mapstructure:"mode"`
	CountMode             string      `mapstructure:"count_mode"`
	MaxItems              int         `mapstructure:"max_items"`
	ApplyFilter           bool        `mapstructure:"apply_filter"`
	DataDir               string      `mapstructure:"data_dir"`
	PresetsFile           string      `mapstructure:"presets_file"`
	LogFilePath           string      `mapstructure:"log_file_path"`
	DebugDir              string      `mapstructure:"debug_dir"`
	SaveAllScreenshots    int         `mapstructure:"save_all_screenshots"`
	Port                  string      `mapstructure:"port"`
	BaudRate              int         `mapstructure:"baud_rate"`
	FindWindow            bool        `mapstructure:"find_window"`
	WindowTopOffset       int         `mapstructure:"window_top_offset"`
	WindowOffset          image.Point `mapstructure:"window_offset"`
	DatabaseDSN           string      `mapstructure:"database_dsn"`
	SaveToDB              int         `mapstructure:"save_to_db"`
	StatusPollSeconds     int         `mapstructure:"status_poll_seconds"`
	MetricsListen         string      `mapstructure:"metrics_listen"`
	OCR                   OCR         `mapstructure:"ocr"`
	Templates             Templates   `mapstructure:"templates"`
	Keys                  Keys        `mapstructure:"keys"`
	Delays                Delays      `mapstructure:"delays"`
	Filter                Filter      `mapstructure:"filter"`
	Shop                  Shop        `mapstructure:"shop"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("game_resolution", []int{1920, 1080})
	v.SetDefault("allow_operate_favorited", false)
	v.SetDefault("require_double_valid", true)
	v.SetDefault("cleaning_mode", CleaningSell)
	v.SetDefault("mode", "normal")
	v.SetDefault("count_mode", CountAuto)
	v.SetDefault("max_items", 100)
	v.SetDefault("apply_filter", true)
	v.SetDefault("data_dir", "data")
	v.SetDefault("presets_file", "data/presets.json")
	v.SetDefault("log_file_path", "logs/nrrelic.log")
	v.SetDefault("debug_dir", "debug")
	v.SetDefault("save_all_screenshots", 0)
	v.SetDefault("port", "COM3")
	v.SetDefault("baud_rate", 9600)
	v.SetDefault("find_window", true)
	v.SetDefault("window_top_offset", 0)
	v.SetDefault("save_to_db", 0)
	v.SetDefault("status_poll_seconds", 2)
	v.SetDefault("metrics_listen", "")
	v.SetDefault("ocr.engine", OCRTesseract)
	v.SetDefault("ocr.language", "chi_sim")
	v.SetDefault("ocr.scale", 2.0)
	v.SetDefault("templates.favorited", "data/icon_bookmark.png")
	v.SetDefault("templates.equipped", "data/icon_cup.png")
	v.SetDefault("templates.threshold", 0.7)
	v.SetDefault("keys.mark_sale", "f")
	v.SetDefault("keys.toggle_favorite", "2")
	v.SetDefault("keys.next_item", "right")
	v.SetDefault("keys.open_sale", "3")
	v.SetDefault("keys.confirm_sale", "f")
	v.SetDefault("delays.startup", 3000)
	v.SetDefault("delays.key_press", 100)
	v.SetDefault("delays.after_action", 150)
	v.SetDefault("delays.confirm", 500)
	v.SetDefault("delays.filter", 300)
	v.SetDefault("filter.title_keyword", "筛选")
	v.SetDefault("shop.version", "new")
	v.SetDefault("shop.limit", 0)
	v.SetDefault("shop.currency_floor", 0)
	v.SetDefault("shop.merchant", "小壶商人巴萨")
	v.SetDefault("shop.relic_template", "data/template_relic.jpg")
	v.SetDefault("shop.menu_key", "m")
	v.SetDefault("shop.scroll_key", "up")
	v.SetDefault("shop.close_key", "q")
	v.SetDefault("shop.menu_delay", 500)
	v.SetDefault("shop.scroll_delay", 200)
	v.SetDefault("shop.purchase_delay", 500)
	v.SetDefault("shop.item_delay", 300)
}

// InitConfig читает YAML-файл конфигурации. Пустой путь означает
// config.yaml в текущем каталоге; отсутствие такого файла не ошибка.
var InitConfig = func(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config") // Имя конфигурационного файла без расширения
		v.AddConfigPath(".")      // Путь к файлу конфигурации
		v.SetConfigType("yaml")   // Формат файла
	}

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound || path != "" {
			return nil, fmt.Errorf("ошибка чтения конфигурации: %v", err)
		}
	}

	// Создание структуры и заполнение её данными из конфигурации
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("ошибка разбора конфигурации: %v", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate проверяет значения конфигурации
func (c *Config) Validate() error {
	if len(c.GameResolution) != 2 || c.GameResolution[0] <= 0 || c.GameResolution[1] <= 0 {
		return fmt.Errorf("game_resolution должен быть [ширина, высота], получено %v", c.GameResolution)
	}
	c.CleaningMode = strings.ToLower(c.CleaningMode)
	if c.CleaningMode != CleaningSell && c.CleaningMode != CleaningFavorite {
		return fmt.Errorf("неизвестный cleaning_mode: %q", c.CleaningMode)
	}
	c.CountMode = strings.ToLower(c.CountMode)
	if c.CountMode != CountAuto && c.CountMode != CountManual {
		return fmt.Errorf("неизвестный count_mode: %q", c.CountMode)
	}
	if c.CountMode == CountManual && (c.MaxItems < 1 || c.MaxItems > 2000) {
		return fmt.Errorf("max_items должен быть от 1 до 2000, получено %d", c.MaxItems)
	}
	if c.OCR.Engine != OCRTesseract && c.OCR.Engine != OCRExec {
		return fmt.Errorf("неизвестный ocr.engine: %q", c.OCR.Engine)
	}
	if c.OCR.Engine == OCRExec && c.OCR.Executable == "" {
		return fmt.Errorf("для ocr.engine=exec нужен ocr.executable")
	}
	if c.Templates.Threshold <= 0 || c.Templates.Threshold > 1 {
		return fmt.Errorf("templates.threshold должен быть в (0, 1], получено %v", c.Templates.Threshold)
	}
	if c.StatusPollSeconds < 1 {
		return fmt.Errorf("status_poll_seconds должен быть не меньше 1")
	}
	c.Shop.Version = strings.ToLower(c.Shop.Version)
	if c.Shop.Version != "new" && c.Shop.Version != "old" {
		return fmt.Errorf("shop.version должен быть new или old, получено %q", c.Shop.Version)
	}
	if c.Shop.Limit < 0 || c.Shop.CurrencyFloor < 0 {
		return fmt.Errorf("shop.limit и shop.currency_floor не могут быть отрицательными")
	}
	if c.Shop.CurrencyFloor > 0 && len(c.Shop.CurrencyRegion) != 4 {
		return fmt.Errorf("для shop.currency_floor нужен shop.currency_region [left, top, right, bottom]")
	}
	return nil
}

// Resolution ширина и высота вывода игры
func (c *Config) Resolution() (int, int) {
	return c.GameResolution[0], c.GameResolution[1]
}
