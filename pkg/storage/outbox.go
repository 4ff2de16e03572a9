package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ZentaChain/zentalk-wsnet/pkg/protocol"
)

// DefaultOutboxTTL is how long an undelivered peer message is kept
const DefaultOutboxTTL = 7 * 24 * time.Hour

// QueuedMessage is a peer payload waiting for a transport session
type QueuedMessage struct {
	ID          int64           `json:"id"`
	ContactName string          `json:"contact"`
	Payload     json.RawMessage `json:"payload"`
	QueuedAt    int64           `json:"queued_at"`
	ExpiresAt   int64           `json:"expires_at"`
	Attempts    int             `json:"attempts"`
}

// QueueMessage stores payload for contactName until it can be sent
func (db *DB) QueueMessage(contactName string, payload json.RawMessage, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		ttl = DefaultOutboxTTL
	}
	if _, err := db.GetContact(contactName); err != nil {
		return 0, err
	}

	now := time.Now()
	res, err := db.db.Exec(
		`INSERT INTO outbox (contact_name, payload, queued_at, expires_at) VALUES (?, ?, ?, ?)`,
		contactName, string(payload), now.Unix(), now.Add(ttl).Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to queue message: %v", err)
	}
	return res.LastInsertId()
}

// QueuedMessages returns unexpired queued messages, oldest first
func (db *DB) QueuedMessages() ([]*QueuedMessage, error) {
	rows, err := db.db.Query(`
		SELECT id, contact_name, payload, queued_at, expires_at, attempts
		FROM outbox
		WHERE expires_at > ?
		ORDER BY id ASC
	`, time.Now().Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*QueuedMessage
	for rows.Next() {
		var m QueuedMessage
		var payload string
		if err := rows.Scan(&m.ID, &m.ContactName, &payload, &m.QueuedAt, &m.ExpiresAt, &m.Attempts); err != nil {
			return nil, err
		}
		m.Payload = json.RawMessage(payload)
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

// DeleteQueuedMessage removes a delivered message
func (db *DB) DeleteQueuedMessage(id int64) error {
	_, err := db.db.Exec(`DELETE FROM outbox WHERE id = ?`, id)
	return err
}

// IncrementAttempts counts a failed delivery attempt
func (db *DB) IncrementAttempts(id int64) error {
	_, err := db.db.Exec(`UPDATE outbox SET attempts = attempts + 1 WHERE id = ?`, id)
	return err
}

// PurgeExpired deletes expired messages and returns how many were removed
func (db *DB) PurgeExpired() (int64, error) {
	res, err := db.db.Exec(`DELETE FROM outbox WHERE expires_at <= ?`, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// OutboxSize returns the number of queued messages
func (db *DB) OutboxSize() (int, error) {
	var n int
	err := db.db.QueryRow(`SELECT COUNT(*) FROM outbox`).Scan(&n)
	return n, err
}

// FlushOutbox hands every queued message to send. Delivered messages are
// removed; failures stay queued with their attempt counter raised.
func (db *DB) FlushOutbox(send func(contact *protocol.Contact, payload json.RawMessage) error) (sent int, err error) {
	if _, err := db.PurgeExpired(); err != nil {
		return 0, err
	}
	msgs, err := db.QueuedMessages()
	if err != nil {
		return 0, err
	}

	for _, m := range msgs {
		c, err := db.GetContact(m.ContactName)
		if err != nil {
			return sent, err
		}
		if err := send(&c.Contact, m.Payload); err != nil {
			if ierr := db.IncrementAttempts(m.ID); ierr != nil {
				return sent, ierr
			}
			continue
		}
		if err := db.DeleteQueuedMessage(m.ID); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}
