package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "123:abc")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.TelegramToken)
	assert.Equal(t, "Sheet1", cfg.SheetName)
	assert.Equal(t, BackendSheets, cfg.StoreBackend)
	assert.Equal(t, 4, cfg.HeaderRows)
	assert.Equal(t, 10*time.Second, cfg.UndoWindow)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 5*time.Second, cfg.SyncInterval)
	assert.Equal(t, 15*time.Second, cfg.StoreTimeout)
	assert.Equal(t, "20:00", cfg.ReminderTime)
	assert.Equal(t, "0.1", cfg.SalaryRate.String())
	assert.Equal(t, ":8080", cfg.StatsAddr)
	assert.False(t, cfg.SheetsConfigured())
}

func TestLoadMissingToken(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")

	_, err := Load()
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestLoadAliasesAndOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "alias")
	t.Setenv("GOOGLE_SPREADSHEET_ID", "sheet-id")
	t.Setenv("GOOGLE_KEY_JSON", `{"type":"service_account"}`)
	t.Setenv("STORE_BACKEND", "Memory")
	t.Setenv("UNDO_WINDOW", "3s")
	t.Setenv("SALARY_RATE", "0,15")
	t.Setenv("TIMEZONE", "UTC")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "alias", cfg.TelegramToken)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, 3*time.Second, cfg.UndoWindow)
	assert.Equal(t, "0.15", cfg.SalaryRate.String())
	assert.Equal(t, time.UTC, cfg.Location)
	assert.True(t, cfg.SheetsConfigured())
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "x")

	t.Setenv("STORE_BACKEND", "postgres")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("TIMEZONE", "Mars/Olympus")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadAdmin(t *testing.T) {
	t.Setenv("BOT_API_URL", "http://bot:8080/")
	cfg := LoadAdmin()
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "http://bot:8080", cfg.BotAPIURL)
}
