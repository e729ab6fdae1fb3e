package repository

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	require.NoError(t, InitDB(db))
	repo := NewRepository(db)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRegisterChatIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.RegisterChat(Chat{ChatID: 10, UserID: 1, Username: "ivan"}))
	require.NoError(t, repo.RegisterChat(Chat{ChatID: 10, UserID: 1, Username: "ivan_new"}))
	require.NoError(t, repo.RegisterChat(Chat{ChatID: 20, UserID: 2}))

	chats, err := repo.GetAllChats()
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, "ivan_new", chats[0].Username)
	assert.True(t, chats[0].RemindersEnabled)
}

func TestReminderChats(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.RegisterChat(Chat{ChatID: 10, UserID: 1}))
	require.NoError(t, repo.RegisterChat(Chat{ChatID: 20, UserID: 2}))
	require.NoError(t, repo.SetReminders(20, false))

	ids, err := repo.GetReminderChats()
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, ids)
}

func TestToggleReminders(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.RegisterChat(Chat{ChatID: 10, UserID: 1}))

	enabled, err := repo.ToggleReminders(10)
	require.NoError(t, err)
	assert.False(t, enabled)
	ids, err := repo.GetReminderChats()
	require.NoError(t, err)
	assert.Empty(t, ids)

	enabled, err = repo.ToggleReminders(10)
	require.NoError(t, err)
	assert.True(t, enabled)

	_, err = repo.ToggleReminders(99)
	assert.ErrorIs(t, err, ErrChatNotFound)
	assert.ErrorIs(t, repo.SetReminders(99, false), ErrChatNotFound)
}

func TestActivityAndClicks(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.RegisterChat(Chat{ChatID: 10, UserID: 1}))
	require.NoError(t, repo.RegisterChat(Chat{ChatID: 20, UserID: 2}))
	require.NoError(t, repo.UpdateChatActivity(20, time.Now().Add(-48*time.Hour)))

	n, err := repo.GetActiveChatsCount(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, repo.RecordButtonClick(10, "kpi"))
	require.NoError(t, repo.RecordButtonClick(10, "kpi"))
	require.NoError(t, repo.RecordButtonClick(20, "hist"))

	clicks, err := repo.GetButtonClicksCount(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"kpi": 2, "hist": 1}, clicks)
}
