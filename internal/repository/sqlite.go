package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteRepository keeps bot-local state that does not belong in the sheet:
// the chats that started the bot and button click statistics.
type SQLiteRepository struct {
	db *sql.DB
}

// ErrChatNotFound means the chat never sent /start.
var ErrChatNotFound = errors.New("chat not registered")

type Chat struct {
	ChatID           int64
	UserID           int64
	Username         string
	FirstName        string
	CreatedAt        time.Time
	LastActive       time.Time
	RemindersEnabled bool
}

func NewSQLiteDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open DB: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping DB: %w", err)
	}
	return db, nil
}

func InitDB(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS chats (
	chat_id INTEGER PRIMARY KEY,
	user_id INTEGER NOT NULL,
	username TEXT,
	first_name TEXT,
	created_at TEXT NOT NULL,
	last_active TEXT NOT NULL,
	reminders_enabled BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS button_clicks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	chat_id INTEGER NOT NULL,
	button TEXT NOT NULL,
	clicked_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_button_clicks_time ON button_clicks(clicked_at);
CREATE INDEX IF NOT EXISTS idx_chats_active ON chats(last_active);
`
	_, err := db.Exec(schema)
	return err
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// RegisterChat records a chat that sent /start. Known chats only get their
// profile and activity refreshed.
func (r *SQLiteRepository) RegisterChat(c Chat) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.Exec(`
INSERT INTO chats (chat_id, user_id, username, first_name, created_at, last_active)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(chat_id) DO UPDATE SET
	user_id = excluded.user_id,
	username = excluded.username,
	first_name = excluded.first_name,
	last_active = excluded.last_active`,
		c.ChatID, c.UserID, c.Username, c.FirstName, now, now,
	)
	if err != nil {
		return fmt.Errorf("register chat: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UpdateChatActivity(chatID int64, at time.Time) error {
	_, err := r.db.Exec(
		"UPDATE chats SET last_active = ? WHERE chat_id = ?",
		at.UTC().Format(time.RFC3339), chatID,
	)
	return err
}

// SetReminders turns the daily reminder on or off for a registered chat.
func (r *SQLiteRepository) SetReminders(chatID int64, enabled bool) error {
	res, err := r.db.Exec(
		"UPDATE chats SET reminders_enabled = ? WHERE chat_id = ?",
		enabled, chatID,
	)
	if err != nil {
		return fmt.Errorf("set reminders: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrChatNotFound
	}
	return nil
}

// ToggleReminders flips the reminder flag and returns the new value.
func (r *SQLiteRepository) ToggleReminders(chatID int64) (bool, error) {
	var enabled bool
	err := r.db.QueryRow(
		"UPDATE chats SET reminders_enabled = NOT reminders_enabled WHERE chat_id = ? RETURNING reminders_enabled",
		chatID,
	).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrChatNotFound
	}
	if err != nil {
		return false, fmt.Errorf("toggle reminders: %w", err)
	}
	return enabled, nil
}

func (r *SQLiteRepository) GetAllChats() ([]Chat, error) {
	rows, err := r.db.Query(
		"SELECT chat_id, user_id, username, first_name, created_at, last_active, reminders_enabled FROM chats ORDER BY created_at, chat_id",
	)
	if err != nil {
		return nil, fmt.Errorf("get chats: %w", err)
	}
	defer rows.Close()

	var chats []Chat
	for rows.Next() {
		var (
			c                   Chat
			username, firstName sql.NullString
			createdAt, active   string
		)
		if err := rows.Scan(&c.ChatID, &c.UserID, &username, &firstName, &createdAt, &active, &c.RemindersEnabled); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		c.Username = username.String
		c.FirstName = firstName.String
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		c.LastActive, _ = time.Parse(time.RFC3339, active)
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// GetReminderChats lists chats the daily reminder goes to.
func (r *SQLiteRepository) GetReminderChats() ([]int64, error) {
	rows, err := r.db.Query("SELECT chat_id FROM chats WHERE reminders_enabled = TRUE ORDER BY chat_id")
	if err != nil {
		return nil, fmt.Errorf("get reminder chats: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SQLiteRepository) GetActiveChatsCount(since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM chats WHERE last_active >= ?",
		since.UTC().Format(time.RFC3339),
	).Scan(&count)
	return count, err
}

func (r *SQLiteRepository) RecordButtonClick(chatID int64, button string) error {
	_, err := r.db.Exec(
		"INSERT INTO button_clicks (chat_id, button, clicked_at) VALUES (?, ?, ?)",
		chatID, button, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetButtonClicksCount groups clicks by callback verb since the given time.
func (r *SQLiteRepository) GetButtonClicksCount(since time.Time) (map[string]int, error) {
	rows, err := r.db.Query(
		"SELECT button, COUNT(*) FROM button_clicks WHERE clicked_at >= ? GROUP BY button",
		since.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("get button clicks: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			button string
			n      int
		)
		if err := rows.Scan(&button, &n); err != nil {
			return nil, err
		}
		counts[button] = n
	}
	return counts, rows.Err()
}
