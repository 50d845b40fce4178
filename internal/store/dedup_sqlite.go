package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattn/go-sqlite3"
)

// SQLiteDedupRepo implements DedupRepo against the inbound_dedup table of a
// SQLiteStore.
type SQLiteDedupRepo struct {
	store *SQLiteStore
}

var _ DedupRepo = (*SQLiteDedupRepo)(nil)

// NewSQLiteDedupRepo wraps an existing SQLiteStore.
func NewSQLiteDedupRepo(store *SQLiteStore) *SQLiteDedupRepo {
	return &SQLiteDedupRepo{store: store}
}

// RecordInbound inserts the message ID, reporting false only when the message
// was already processed to completion. A duplicate of a record that never got
// its processed_at stamp is a redelivery of an aborted turn and proceeds.
func (r *SQLiteDedupRepo) RecordInbound(messageID, senderPhone string, at time.Time) (bool, error) {
	_, err := r.store.db.Exec(`INSERT INTO inbound_dedup (message_id, sender_phone, received_at) VALUES (?, ?, ?)`,
		messageID, senderPhone, at.UTC())
	if err != nil {
		if sqliteErr, ok := err.(sqlite3.Error); ok && sqliteErr.Code == sqlite3.ErrConstraint {
			var processed sql.NullTime
			if scanErr := r.store.db.QueryRow(`SELECT processed_at FROM inbound_dedup WHERE message_id = ?`,
				messageID).Scan(&processed); scanErr != nil {
				return false, fmt.Errorf("failed to check duplicate message state: %w", scanErr)
			}
			if !processed.Valid {
				slog.Info("SQLiteDedupRepo RecordInbound retrying unprocessed delivery",
					"messageID", messageID, "senderPhone", senderPhone)
				return true, nil
			}
			slog.Debug("SQLiteDedupRepo RecordInbound duplicate", "messageID", messageID, "senderPhone", senderPhone)
			return false, nil
		}
		return false, fmt.Errorf("failed to record inbound message: %w", err)
	}
	return true, nil
}

// MarkProcessed stamps the record after the pipeline completes.
func (r *SQLiteDedupRepo) MarkProcessed(messageID string) error {
	_, err := r.store.db.Exec(`UPDATE inbound_dedup SET processed_at = ? WHERE message_id = ?`,
		time.Now().UTC(), messageID)
	if err != nil {
		return fmt.Errorf("failed to mark message processed: %w", err)
	}
	return nil
}

// IsDuplicate reports whether the message ID has been seen before.
func (r *SQLiteDedupRepo) IsDuplicate(messageID string) (bool, error) {
	var count int
	err := r.store.db.QueryRow(`SELECT COUNT(1) FROM inbound_dedup WHERE message_id = ?`, messageID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check message duplicate: %w", err)
	}
	return count > 0, nil
}
