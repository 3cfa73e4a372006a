package store

import (
	"database/sql"
	"strings"
)

// Contact is a deduplicated person record. Email is the dedup key when
// present; a contact without an email is never merged automatically.
type Contact struct {
	ID        int64
	Name      sql.NullString
	Email     sql.NullString
	Phone     sql.NullString
	Notes     sql.NullString
	Ignored   bool
	CreatedAt string
	UpdatedAt string
}

// ResolveOrCreateContact returns the contact for the given email, creating
// it if needed. An existing record is enriched when the supplied name or
// phone carries information it lacks: a null field becoming non-null, or a
// strictly more complete name (one containing the current name as a
// substring). Existing non-null data is never overwritten with null, and
// updated_at is bumped only on enrichment.
//
// With an empty email a new contact is created unconditionally; there is
// no cross-referencing by name alone. If both email and name are empty,
// ErrInsufficientContactInfo is returned.
func (s *Store) ResolveOrCreateContact(email, name, phone string) (*Contact, error) {
	c, _, err := resolveOrCreateContact(s.db, email, name, phone)
	return c, err
}

func resolveOrCreateContact(q dbtx, email, name, phone string) (*Contact, bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)
	phone = strings.TrimSpace(phone)

	if email == "" && name == "" {
		return nil, false, ErrInsufficientContactInfo
	}

	if email != "" {
		existing, err := contactByEmail(q, email)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			if err := enrichContact(q, existing, name, phone); err != nil {
				return nil, false, err
			}
			return existing, false, nil
		}
	}

	result, err := q.Exec(`
		INSERT INTO contacts (name, email, phone)
		VALUES (?, ?, ?)
	`,
		sql.NullString{String: name, Valid: name != ""},
		sql.NullString{String: email, Valid: email != ""},
		sql.NullString{String: phone, Valid: phone != ""},
	)
	if err != nil {
		return nil, false, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, false, err
	}
	c, err := getContact(q, id)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// enrichContact applies the conservative enrichment rules to an existing
// record and persists them if anything improved. The contact struct is
// updated in place.
func enrichContact(q dbtx, c *Contact, name, phone string) error {
	changed := false

	if name != "" && betterName(c.Name, name) {
		c.Name = sql.NullString{String: name, Valid: true}
		changed = true
	}
	if phone != "" && !c.Phone.Valid {
		c.Phone = sql.NullString{String: phone, Valid: true}
		changed = true
	}

	if !changed {
		return nil
	}

	_, err := q.Exec(`
		UPDATE contacts
		SET name = ?, phone = ?, updated_at = datetime('now')
		WHERE id = ?
	`, c.Name, c.Phone, c.ID)
	return err
}

// betterName reports whether candidate is a strict improvement over the
// stored name: the stored name is empty, or the candidate is longer and
// contains it as a substring. Anything fuzzier is a product decision.
func betterName(current sql.NullString, candidate string) bool {
	if !current.Valid || strings.TrimSpace(current.String) == "" {
		return true
	}
	cur := current.String
	return len(candidate) > len(cur) && strings.Contains(candidate, cur)
}

func contactByEmail(q dbtx, email string) (*Contact, error) {
	c := &Contact{}
	err := q.QueryRow(`
		SELECT id, name, email, phone, notes, ignored, created_at, updated_at
		FROM contacts WHERE email = ?
	`, email).Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Notes, &c.Ignored, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func getContact(q dbtx, id int64) (*Contact, error) {
	c := &Contact{}
	err := q.QueryRow(`
		SELECT id, name, email, phone, notes, ignored, created_at, updated_at
		FROM contacts WHERE id = ?
	`, id).Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Notes, &c.Ignored, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUnknownContact
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetContact returns the contact with the given id.
// Returns ErrUnknownContact if it does not exist.
func (s *Store) GetContact(id int64) (*Contact, error) {
	return getContact(s.db, id)
}

// ListContacts returns all contacts ordered by name, then email.
func (s *Store) ListContacts() ([]Contact, error) {
	rows, err := s.db.Query(`
		SELECT id, name, email, phone, notes, ignored, created_at, updated_at
		FROM contacts
		ORDER BY name IS NULL, name, email
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Notes, &c.Ignored, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// contactIgnored reports whether the contact with the given id carries the
// ignored flag. Unknown ids report false; the caller validates existence
// where it matters.
func contactIgnored(q dbtx, id int64) (bool, error) {
	var ignored bool
	err := q.QueryRow(`SELECT ignored FROM contacts WHERE id = ?`, id).Scan(&ignored)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return ignored, nil
}

func contactExists(q dbtx, id int64) (bool, error) {
	var one int
	err := q.QueryRow(`SELECT 1 FROM contacts WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
