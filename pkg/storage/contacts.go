package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ZentaChain/zentalk-wsnet/pkg/protocol"
)

// Contact is a stored peer
type Contact struct {
	protocol.Contact
	AddedAt  int64 `json:"added_at"`
	LastSeen int64 `json:"last_seen"`
}

const contactColumns = `name, address, port, pkeyhash, public_key, added_at, last_seen`

// SaveContact adds or updates a contact by name
func (db *DB) SaveContact(c *protocol.Contact) error {
	if c == nil || strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidContact)
	}
	if c.Address == "" || c.Port <= 0 {
		return fmt.Errorf("%w: address and port are required", ErrInvalidContact)
	}
	if c.PKeyHash == "" {
		return fmt.Errorf("%w: pkeyhash is required", ErrInvalidContact)
	}

	query := `
		INSERT INTO contacts (` + contactColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(name) DO UPDATE SET
			address = excluded.address,
			port = excluded.port,
			pkeyhash = excluded.pkeyhash,
			public_key = excluded.public_key
	`
	_, err := db.db.Exec(query, c.Name, c.Address, c.Port, c.PKeyHash, c.PublicKey, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save contact: %v", err)
	}
	return nil
}

func scanContact(row interface{ Scan(...any) error }) (*Contact, error) {
	var c Contact
	err := row.Scan(&c.Name, &c.Address, &c.Port, &c.PKeyHash, &c.PublicKey, &c.AddedAt, &c.LastSeen)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetContact retrieves a contact by name
func (db *DB) GetContact(name string) (*Contact, error) {
	row := db.db.QueryRow(`SELECT `+contactColumns+` FROM contacts WHERE name = ?`, name)
	c, err := scanContact(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return c, err
}

// GetContactByPKHash retrieves a contact by public key hash
func (db *DB) GetContactByPKHash(pkhash string) (*Contact, error) {
	row := db.db.QueryRow(`SELECT `+contactColumns+` FROM contacts WHERE pkeyhash = ? LIMIT 1`, pkhash)
	c, err := scanContact(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return c, err
}

// LookupContact returns the named contact, or nil when it is unknown
func (db *DB) LookupContact(name string) (*protocol.Contact, error) {
	c, err := db.GetContact(name)
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c.Contact, nil
}

// ListContacts returns all contacts ordered by name
func (db *DB) ListContacts() ([]*Contact, error) {
	rows, err := db.db.Query(`SELECT ` + contactColumns + ` FROM contacts ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []*Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// DeleteContact removes a contact and its queued messages
func (db *DB) DeleteContact(name string) error {
	res, err := db.db.Exec(`DELETE FROM contacts WHERE name = ?`, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	_, err = db.db.Exec(`DELETE FROM outbox WHERE contact_name = ?`, name)
	return err
}

// TouchContact records that a message from the contact was just seen
func (db *DB) TouchContact(name string) error {
	res, err := db.db.Exec(`UPDATE contacts SET last_seen = ? WHERE name = ?`, time.Now().Unix(), name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
