package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestInitConfigDefaults(t *testing.T) {
	c, err := InitConfig(writeConfig(t, "port: COM7\n"))
	require.NoError(t, err)

	w, h := c.Resolution()
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)
	assert.Equal(t, "COM7", c.Port)
	assert.True(t, c.RequireDoubleValid)
	assert.False(t, c.AllowOperateFavorited)
	assert.Equal(t, CleaningSell, c.CleaningMode)
	assert.Equal(t, "chi_sim", c.OCR.Language)
	assert.Equal(t, "right", c.Keys.NextItem)
	assert.Equal(t, 0.7, c.Templates.Threshold)
	assert.Equal(t, 3000, c.Delays.Startup)
	assert.Equal(t, "筛选", c.Filter.TitleKeyword)
}

func TestInitConfigOverrides(t *testing.T) {
	c, err := InitConfig(writeConfig(t, `
game_resolution: [3440, 1440]
cleaning_mode: Favorite
count_mode: manual
max_items: 250
allow_operate_favorited: true
window_offset:
  x: 12
  y: 34
keys:
  mark_sale: g
`))
	require.NoError(t, err)
	w, h := c.Resolution()
	assert.Equal(t, 3440, w)
	assert.Equal(t, 1440, h)
	assert.Equal(t, CleaningFavorite, c.CleaningMode)
	assert.Equal(t, 250, c.MaxItems)
	assert.True(t, c.AllowOperateFavorited)
	assert.Equal(t, 12, c.WindowOffset.X)
	assert.Equal(t, 34, c.WindowOffset.Y)
	assert.Equal(t, "g", c.Keys.MarkSale)
	assert.Equal(t, "2", c.Keys.ToggleFavorite)
}

func TestInitConfigValidation(t *testing.T) {
	cases := []string{
		"game_resolution: [1920]\n",
		"cleaning_mode: burn\n",
		"count_mode: manual\nmax_items: 2001\n",
		"count_mode: manual\nmax_items: 0\n",
		"ocr:\n  engine: exec\n",
		"templates:\n  threshold: 1.5\n",
		"status_poll_seconds: 0\n",
		"shop:\n  version: ancient\n",
		"shop:\n  limit: -10\n",
		"shop:\n  currency_floor: 100\n",
	}
	for _, content := range cases {
		_, err := InitConfig(writeConfig(t, content))
		assert.Error(t, err, content)
	}
}

func TestInitConfigMissingExplicitFile(t *testing.T) {
	_, err := InitConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestInitConfigShop(t *testing.T) {
	c, err := InitConfig(writeConfig(t, `
shop:
  version: OLD
  limit: 200
  currency_floor: 5000
  currency_region: [1600, 40, 1800, 80]
`))
	require.NoError(t, err)
	assert.Equal(t, "old", c.Shop.Version)
	assert.Equal(t, 200, c.Shop.Limit)
	assert.Equal(t, 5000, c.Shop.CurrencyFloor)
	assert.Equal(t, []int{1600, 40, 1800, 80}, c.Shop.CurrencyRegion)
	assert.Equal(t, "小壶商人巴萨", c.Shop.Merchant)
	assert.Equal(t, "up", c.Shop.ScrollKey)
	assert.Equal(t, 200, c.Shop.ScrollDelay)
}
