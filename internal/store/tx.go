package store

import (
	"database/sql"
	"fmt"
)

// Tx exposes the write operations scoped to a single transaction. It
// exists for multi-record batch work (the migration runner) that needs
// every step of a logical record inside one scope, plus per-record
// savepoints for error isolation. Single-shot callers use the Store
// methods directly.
type Tx struct {
	tx  *sql.Tx
	seq int
}

// WithTx runs fn inside one transaction. Any error from fn rolls the
// whole transaction back.
func (s *Store) WithTx(fn func(*Tx) error) error {
	return s.withTx(func(tx *sql.Tx) error {
		return fn(&Tx{tx: tx})
	})
}

// WithTxRollback runs fn inside a transaction that is always rolled back,
// regardless of fn's outcome. This is the dry-run primitive: the full
// write path executes against the transaction and none of it persists.
func (s *Store) WithTxRollback(fn func(*Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is the point
	return fn(&Tx{tx: tx})
}

// Savepoint runs fn inside a savepoint. If fn returns an error the
// savepoint is rolled back, leaving the enclosing transaction usable;
// otherwise it is released.
func (t *Tx) Savepoint(fn func() error) error {
	t.seq++
	name := fmt.Sprintf("sp_%d", t.seq)
	if _, err := t.tx.Exec("SAVEPOINT " + name); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if err := fn(); err != nil {
		if _, rbErr := t.tx.Exec("ROLLBACK TO " + name); rbErr != nil {
			return fmt.Errorf("rollback to savepoint after %v: %w", err, rbErr)
		}
		if _, relErr := t.tx.Exec("RELEASE " + name); relErr != nil {
			return fmt.Errorf("release savepoint after %v: %w", err, relErr)
		}
		return err
	}
	if _, err := t.tx.Exec("RELEASE " + name); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

// ResolveOrCreateContact is the transaction-scoped form of
// Store.ResolveOrCreateContact. The second return reports whether a new
// contact row was created.
func (t *Tx) ResolveOrCreateContact(email, name, phone string) (*Contact, bool, error) {
	return resolveOrCreateContact(t.tx, email, name, phone)
}

// UpsertCommunication is the transaction-scoped form of
// Store.UpsertCommunication. The second return reports whether a new row
// was created (as opposed to an existing row being refreshed).
func (t *Tx) UpsertCommunication(c *Communication) (*Communication, bool, error) {
	return upsertCommunication(t.tx, c)
}

// Assign is the transaction-scoped form of Store.Assign. The second
// return reports whether a new link row was created.
func (t *Tx) Assign(communicationID, projectID, contactID int64) (*Link, bool, error) {
	return assign(t.tx, communicationID, projectID, contactID)
}

// SetCommunicationStatus overwrites a communication's status and reminder
// without state-machine checks. Reserved for the migration runner, which
// must carry legacy triage decisions over verbatim.
func (t *Tx) SetCommunicationStatus(id int64, status string, remindAt sql.NullString) error {
	_, err := t.tx.Exec(`
		UPDATE communications
		SET status = ?, remind_at = ?, updated_at = datetime('now')
		WHERE id = ?
	`, status, remindAt, id)
	return err
}

// SetContactIgnored sets the ignored flag inside the transaction.
func (t *Tx) SetContactIgnored(contactID int64) error {
	_, err := t.tx.Exec(`
		UPDATE contacts SET ignored = 1, updated_at = datetime('now')
		WHERE id = ? AND ignored = 0
	`, contactID)
	return err
}

// Query runs a read query inside the transaction.
func (t *Tx) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return t.tx.Query(query, args...)
}

// QueryRow runs a single-row read query inside the transaction.
func (t *Tx) QueryRow(query string, args ...interface{}) *sql.Row {
	return t.tx.QueryRow(query, args...)
}
