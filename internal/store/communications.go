package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Communication types. The set is closed; adding a type means adding a
// constant here and extending ValidType.
const (
	TypeEmail   = "email"
	TypeChat    = "chat"
	TypeFile    = "file"
	TypeMeeting = "meeting"
	TypeNote    = "note"
)

// ValidType reports whether t is a supported communication type.
func ValidType(t string) bool {
	switch t {
	case TypeEmail, TypeChat, TypeFile, TypeMeeting, TypeNote:
		return true
	}
	return false
}

// Triage statuses. Transitions:
//
//	unassigned -> assigned | snoozed | ignored
//	snoozed    -> unassigned (reminder firing) | assigned | ignored
//
// assigned and ignored are terminal for the reminder sweep but remain
// reachable again through explicit reassignment.
const (
	StatusUnassigned = "unassigned"
	StatusAssigned   = "assigned"
	StatusSnoozed    = "snoozed"
	StatusIgnored    = "ignored"
)

// Communication is a single tracked interaction of any type.
// Timestamp is the interaction time, not the record-creation time.
// (Type, SourceID) is the idempotency key; a communication without a
// SourceID is never deduplicated.
type Communication struct {
	ID              int64
	Type            string
	Content         sql.NullString
	Subject         sql.NullString
	Snippet         sql.NullString
	Timestamp       sql.NullString // sqlTimeFormat
	RawPath         sql.NullString
	SourceID        sql.NullString
	SenderContactID sql.NullInt64
	Status          string
	RemindAt        sql.NullString // sqlTimeFormat
	CreatedAt       string
	UpdatedAt       string
}

// UpsertCommunication inserts or updates a communication keyed on
// (type, source_id). On update only the mutable fields (content, subject,
// snippet, timestamp, raw_path, sender metadata) change; status and
// remind_at are left exactly as a prior triage decision set them. New rows
// start unassigned, or ignored when the resolved sender carries the
// ignored flag.
func (s *Store) UpsertCommunication(c *Communication) (*Communication, error) {
	out, _, err := upsertCommunication(s.db, c)
	return out, err
}

func upsertCommunication(q dbtx, c *Communication) (*Communication, bool, error) {
	if !ValidType(c.Type) {
		return nil, false, fmt.Errorf("%w: %q", ErrInvalidType, c.Type)
	}

	if c.SourceID.Valid {
		var existingID int64
		err := q.QueryRow(`
			SELECT id FROM communications WHERE type = ? AND source_id = ?
		`, c.Type, c.SourceID.String).Scan(&existingID)
		if err != nil && err != sql.ErrNoRows {
			return nil, false, err
		}
		if err == nil {
			_, err := q.Exec(`
				UPDATE communications
				SET content = ?, subject = ?, snippet = ?, timestamp = ?,
				    raw_path = ?, sender_contact_id = ?, updated_at = datetime('now')
				WHERE id = ?
			`, c.Content, c.Subject, c.Snippet, c.Timestamp,
				c.RawPath, c.SenderContactID, existingID)
			if err != nil {
				return nil, false, err
			}
			out, err := getCommunication(q, existingID)
			return out, false, err
		}
	}

	status := StatusUnassigned
	if c.SenderContactID.Valid {
		ignored, err := contactIgnored(q, c.SenderContactID.Int64)
		if err != nil {
			return nil, false, err
		}
		if ignored {
			status = StatusIgnored
		}
	}

	result, err := q.Exec(`
		INSERT INTO communications (
			type, content, subject, snippet, timestamp,
			raw_path, source_id, sender_contact_id, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.Type, c.Content, c.Subject, c.Snippet, c.Timestamp,
		c.RawPath, c.SourceID, c.SenderContactID, status)
	if err != nil {
		return nil, false, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, false, err
	}
	out, err := getCommunication(q, id)
	return out, true, err
}

func getCommunication(q dbtx, id int64) (*Communication, error) {
	c := &Communication{}
	err := q.QueryRow(`
		SELECT id, type, content, subject, snippet, timestamp,
		       raw_path, source_id, sender_contact_id, status, remind_at,
		       created_at, updated_at
		FROM communications WHERE id = ?
	`, id).Scan(&c.ID, &c.Type, &c.Content, &c.Subject, &c.Snippet, &c.Timestamp,
		&c.RawPath, &c.SourceID, &c.SenderContactID, &c.Status, &c.RemindAt,
		&c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUnknownCommunication
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetCommunication returns the communication with the given id.
// Returns ErrUnknownCommunication if it does not exist.
func (s *Store) GetCommunication(id int64) (*Communication, error) {
	return getCommunication(s.db, id)
}

// ListCommunications returns communications filtered by the given
// statuses (all statuses when empty), newest interaction first.
func (s *Store) ListCommunications(statuses ...string) ([]Communication, error) {
	query := `
		SELECT id, type, content, subject, snippet, timestamp,
		       raw_path, source_id, sender_contact_id, status, remind_at,
		       created_at, updated_at
		FROM communications
	`
	var args []interface{}
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "?"
			args = append(args, st)
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ",") + `)`
	}
	query += ` ORDER BY timestamp DESC, id DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanCommunications(rows)
}

func scanCommunications(rows *sql.Rows) ([]Communication, error) {
	var comms []Communication
	for rows.Next() {
		var c Communication
		if err := rows.Scan(&c.ID, &c.Type, &c.Content, &c.Subject, &c.Snippet, &c.Timestamp,
			&c.RawPath, &c.SourceID, &c.SenderContactID, &c.Status, &c.RemindAt,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		comms = append(comms, c)
	}
	return comms, rows.Err()
}

// Snooze transitions an unassigned or snoozed communication to snoozed
// with the given reminder time. Other states require an explicit
// reassignment first and return ErrInvalidStatus.
func (s *Store) Snooze(id int64, remindAt time.Time) error {
	return s.withTx(func(tx *sql.Tx) error {
		c, err := getCommunication(tx, id)
		if err != nil {
			return err
		}
		if c.Status != StatusUnassigned && c.Status != StatusSnoozed {
			return fmt.Errorf("%w: snooze from %q", ErrInvalidStatus, c.Status)
		}
		_, err = tx.Exec(`
			UPDATE communications
			SET status = ?, remind_at = ?, updated_at = datetime('now')
			WHERE id = ?
		`, StatusSnoozed, remindAt.UTC().Format(sqlTimeFormat), id)
		return err
	})
}

// MarkIgnored sets a single communication's status to ignored. Suppressing
// the sender's future communications as well is IgnoreSender's job.
func (s *Store) MarkIgnored(id int64) error {
	result, err := s.db.Exec(`
		UPDATE communications
		SET status = ?, remind_at = NULL, updated_at = datetime('now')
		WHERE id = ?
	`, StatusIgnored, id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUnknownCommunication
	}
	return nil
}

// DueReminders finds all snoozed communications whose reminder time has
// arrived (remind_at <= now) and transitions them back to unassigned,
// returning them ordered by remind_at ascending. The select and the
// transition happen in one transaction, so a rerun after a crash simply
// picks up whatever was not yet transitioned. now is injected to keep the
// sweep deterministic.
func (s *Store) DueReminders(now time.Time) ([]Communication, error) {
	cutoff := now.UTC().Format(sqlTimeFormat)

	var due []Communication
	err := s.withTx(func(tx *sql.Tx) error {
		rows, err := tx.Query(`
			SELECT id, type, content, subject, snippet, timestamp,
			       raw_path, source_id, sender_contact_id, status, remind_at,
			       created_at, updated_at
			FROM communications
			WHERE status = ? AND remind_at IS NOT NULL AND remind_at <= ?
			ORDER BY remind_at
		`, StatusSnoozed, cutoff)
		if err != nil {
			return err
		}
		due, err = scanCommunications(rows)
		rows.Close()
		if err != nil {
			return err
		}

		for i := range due {
			if _, err := tx.Exec(`
				UPDATE communications
				SET status = ?, remind_at = NULL, updated_at = datetime('now')
				WHERE id = ?
			`, StatusUnassigned, due[i].ID); err != nil {
				return err
			}
			due[i].Status = StatusUnassigned
			due[i].RemindAt = sql.NullString{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return due, nil
}
