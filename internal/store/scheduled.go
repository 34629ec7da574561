package store

import (
	"time"

	"github.com/involvex/warelay/internal/model"
)

// AddScheduled appends an entry to the deferred-send queue.
func (db *DB) AddScheduled(m *model.ScheduledMessage) error {
	_, err := db.Exec(`
		INSERT INTO scheduled_messages (id, chat_jid, body, scheduled_for, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.ChatID, m.Body, m.ScheduledFor, m.CreatedAt)
	return err
}

// ListScheduled returns the whole queue ordered by due time.
func (db *DB) ListScheduled() ([]model.ScheduledMessage, error) {
	return db.queryScheduled(`
		SELECT id, chat_jid, body, scheduled_for, created_at
		FROM scheduled_messages ORDER BY scheduled_for ASC`)
}

// DueScheduled returns entries whose due time is at or before now.
func (db *DB) DueScheduled(now time.Time) ([]model.ScheduledMessage, error) {
	return db.queryScheduled(`
		SELECT id, chat_jid, body, scheduled_for, created_at
		FROM scheduled_messages WHERE scheduled_for <= ? ORDER BY scheduled_for ASC`,
		now.UnixMilli())
}

// RemoveScheduled deletes an entry by id, reporting whether this call won
// the removal. A concurrent sweep that lost the race gets false and must
// not dispatch.
func (db *DB) RemoveScheduled(id string) (bool, error) {
	res, err := db.Exec(`DELETE FROM scheduled_messages WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (db *DB) queryScheduled(query string, args ...any) ([]model.ScheduledMessage, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.ScheduledMessage
	for rows.Next() {
		var m model.ScheduledMessage
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Body, &m.ScheduledFor, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
