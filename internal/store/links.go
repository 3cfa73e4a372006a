package store

import (
	"database/sql"
)

// Link associates exactly one project, one communication, and one contact.
// Unique on the full triple; immutable once created.
type Link struct {
	ID              int64
	ProjectID       int64
	CommunicationID int64
	ContactID       int64
	CreatedAt       string
}

// Assign links a communication to a project under a contact, atomically:
// the link row is upserted (re-assignment to the same triple is a silent
// no-op), the communication transitions to assigned, and project
// membership for (project, contact) is recorded if absent.
//
// contactID may be zero, in which case the communication's stored sender
// is used; if the communication has no resolved sender either,
// ErrUnknownContact is returned. Stale project or communication ids
// surface as ErrUnknownProject / ErrUnknownCommunication.
func (s *Store) Assign(communicationID, projectID, contactID int64) (*Link, error) {
	var link *Link
	err := s.withTx(func(tx *sql.Tx) error {
		var err error
		link, _, err = assign(tx, communicationID, projectID, contactID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

func assign(q dbtx, communicationID, projectID, contactID int64) (*Link, bool, error) {
	comm, err := getCommunication(q, communicationID)
	if err != nil {
		return nil, false, err
	}

	ok, err := projectExists(q, projectID)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, ErrUnknownProject
	}

	if contactID == 0 {
		if !comm.SenderContactID.Valid {
			return nil, false, ErrUnknownContact
		}
		contactID = comm.SenderContactID.Int64
	}
	ok, err = contactExists(q, contactID)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, ErrUnknownContact
	}

	result, err := q.Exec(`
		INSERT OR IGNORE INTO project_communications (project_id, communication_id, contact_id)
		VALUES (?, ?, ?)
	`, projectID, communicationID, contactID)
	if err != nil {
		return nil, false, err
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	if _, err := q.Exec(`
		UPDATE communications
		SET status = ?, remind_at = NULL, updated_at = datetime('now')
		WHERE id = ?
	`, StatusAssigned, communicationID); err != nil {
		return nil, false, err
	}

	if _, err := q.Exec(`
		INSERT OR IGNORE INTO project_contacts (project_id, contact_id)
		VALUES (?, ?)
	`, projectID, contactID); err != nil {
		return nil, false, err
	}

	link := &Link{}
	err = q.QueryRow(`
		SELECT id, project_id, communication_id, contact_id, created_at
		FROM project_communications
		WHERE project_id = ? AND communication_id = ? AND contact_id = ?
	`, projectID, communicationID, contactID).Scan(
		&link.ID, &link.ProjectID, &link.CommunicationID, &link.ContactID, &link.CreatedAt)
	if err != nil {
		return nil, false, err
	}
	return link, inserted > 0, nil
}

// IgnoreSender marks the contact as ignored, so subsequent upserts that
// resolve their sender to this contact are written with status ignored
// instead of entering triage. Existing rows are not touched; the flag is
// consulted at upsert time.
func (s *Store) IgnoreSender(contactID int64) error {
	result, err := s.db.Exec(`
		UPDATE contacts SET ignored = 1, updated_at = datetime('now')
		WHERE id = ? AND ignored = 0
	`, contactID)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either already ignored (fine) or missing (error).
		ok, err := contactExists(s.db, contactID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrUnknownContact
		}
	}
	return nil
}
