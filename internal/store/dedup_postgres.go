package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// PostgresDedupRepo implements DedupRepo against the inbound_dedup table of a
// PostgresStore.
type PostgresDedupRepo struct {
	store *PostgresStore
}

var _ DedupRepo = (*PostgresDedupRepo)(nil)

// NewPostgresDedupRepo wraps an existing PostgresStore.
func NewPostgresDedupRepo(store *PostgresStore) *PostgresDedupRepo {
	return &PostgresDedupRepo{store: store}
}

// RecordInbound inserts the message ID, reporting false only when the message
// was already processed to completion. A duplicate of a record that never got
// its processed_at stamp is a redelivery of an aborted turn and proceeds.
func (r *PostgresDedupRepo) RecordInbound(messageID, senderPhone string, at time.Time) (bool, error) {
	res, err := r.store.db.Exec(`INSERT INTO inbound_dedup (message_id, sender_phone, received_at)
		VALUES ($1, $2, $3) ON CONFLICT (message_id) DO NOTHING`, messageID, senderPhone, at.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to record inbound message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		var processed sql.NullTime
		if scanErr := r.store.db.QueryRow(`SELECT processed_at FROM inbound_dedup WHERE message_id = $1`,
			messageID).Scan(&processed); scanErr != nil {
			return false, fmt.Errorf("failed to check duplicate message state: %w", scanErr)
		}
		if !processed.Valid {
			slog.Info("PostgresDedupRepo RecordInbound retrying unprocessed delivery",
				"messageID", messageID, "senderPhone", senderPhone)
			return true, nil
		}
		slog.Debug("PostgresDedupRepo RecordInbound duplicate", "messageID", messageID, "senderPhone", senderPhone)
		return false, nil
	}
	return true, nil
}

// MarkProcessed stamps the record after the pipeline completes.
func (r *PostgresDedupRepo) MarkProcessed(messageID string) error {
	_, err := r.store.db.Exec(`UPDATE inbound_dedup SET processed_at = $1 WHERE message_id = $2`,
		time.Now().UTC(), messageID)
	if err != nil {
		return fmt.Errorf("failed to mark message processed: %w", err)
	}
	return nil
}

// IsDuplicate reports whether the message ID has been seen before.
func (r *PostgresDedupRepo) IsDuplicate(messageID string) (bool, error) {
	var count int
	err := r.store.db.QueryRow(`SELECT COUNT(1) FROM inbound_dedup WHERE message_id = $1`, messageID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check message duplicate: %w", err)
	}
	return count > 0, nil
}
