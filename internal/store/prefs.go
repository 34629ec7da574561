package store

import (
	"database/sql"
	"time"
)

const prefLastChat = "last_chat_id"

// PinChat marks a chat as pinned. Idempotent.
func (db *DB) PinChat(chatID string) error {
	_, err := db.Exec(`
		INSERT INTO pinned_chats (chat_jid, pinned_at) VALUES (?, ?)
		ON CONFLICT(chat_jid) DO NOTHING`,
		chatID, time.Now().UnixMilli())
	return err
}

// UnpinChat removes a chat from the pinned set. Idempotent.
func (db *DB) UnpinChat(chatID string) error {
	_, err := db.Exec(`DELETE FROM pinned_chats WHERE chat_jid = ?`, chatID)
	return err
}

// PinnedChats returns pinned chat ids in pin order.
func (db *DB) PinnedChats() ([]string, error) {
	rows, err := db.Query(`SELECT chat_jid FROM pinned_chats ORDER BY pinned_at ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SetLastChat records the most recently opened chat.
func (db *DB) SetLastChat(chatID string) error {
	return db.setPref(prefLastChat, chatID)
}

// LastChat returns the most recently opened chat id, or "" if never set.
func (db *DB) LastChat() (string, error) {
	return db.getPref(prefLastChat)
}

func (db *DB) setPref(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	return err
}

func (db *DB) getPref(key string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}
