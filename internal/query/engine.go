// Package query implements the two pivot projections: everything for a
// project, and everything with a contact grouped by project. Results are
// recomputed on every call; there is no caching.
package query

import (
	"database/sql"

	"github.com/wesm/projtrack/internal/store"
)

// Engine answers the pivot queries over an open store database.
type Engine struct {
	db *sql.DB
	st *store.Store
}

// NewEngine creates a query engine. It does not own the connection.
func NewEngine(st *store.Store) *Engine {
	return &Engine{db: st.DB(), st: st}
}

// Item pairs a communication with the contact it was linked under.
type Item struct {
	Communication store.Communication
	Contact       store.Contact
}

// ProjectGroup is one project's slice of a contact's timeline.
type ProjectGroup struct {
	Project        store.Project
	Communications []Item
}

// pivotSelect is the single join both pivots are carved from. Keeping one
// query shape guarantees the by-project and by-contact paths can never
// disagree about which links exist.
const pivotSelect = `
	SELECT
		c.id, c.type, c.content, c.subject, c.snippet, c.timestamp,
		c.raw_path, c.source_id, c.sender_contact_id, c.status, c.remind_at,
		c.created_at, c.updated_at,
		ct.id, ct.name, ct.email, ct.phone, ct.notes, ct.ignored,
		ct.created_at, ct.updated_at,
		p.id, p.name, p.description, p.created_at, p.updated_at
	FROM project_communications pc
	JOIN communications c ON c.id = pc.communication_id
	JOIN contacts ct ON ct.id = pc.contact_id
	JOIN projects p ON p.id = pc.project_id
`

type pivotRow struct {
	item    Item
	project store.Project
}

func scanPivotRows(rows *sql.Rows) ([]pivotRow, error) {
	defer rows.Close()

	var out []pivotRow
	for rows.Next() {
		var r pivotRow
		c := &r.item.Communication
		ct := &r.item.Contact
		p := &r.project
		if err := rows.Scan(
			&c.ID, &c.Type, &c.Content, &c.Subject, &c.Snippet, &c.Timestamp,
			&c.RawPath, &c.SourceID, &c.SenderContactID, &c.Status, &c.RemindAt,
			&c.CreatedAt, &c.UpdatedAt,
			&ct.ID, &ct.Name, &ct.Email, &ct.Phone, &ct.Notes, &ct.Ignored,
			&ct.CreatedAt, &ct.UpdatedAt,
			&p.ID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ProjectView returns every communication linked to the project, paired
// with the contact involved, most recent interaction first.
// Returns store.ErrUnknownProject for a stale project id.
func (e *Engine) ProjectView(projectID int64) ([]Item, error) {
	if _, err := e.st.GetProject(projectID); err != nil {
		return nil, err
	}

	rows, err := e.db.Query(pivotSelect+`
		WHERE pc.project_id = ?
		ORDER BY c.timestamp DESC, c.id DESC
	`, projectID)
	if err != nil {
		return nil, err
	}
	scanned, err := scanPivotRows(rows)
	if err != nil {
		return nil, err
	}

	items := make([]Item, len(scanned))
	for i, r := range scanned {
		items[i] = r.item
	}
	return items, nil
}

// ContactViewGrouped returns the contact's communications partitioned by
// project. The map holds every project with at least one link to the
// contact; within each group, communications are ordered newest first.
// Returns store.ErrUnknownContact for a stale contact id.
func (e *Engine) ContactViewGrouped(contactID int64) (map[int64]*ProjectGroup, error) {
	scanned, err := e.contactRows(contactID)
	if err != nil {
		return nil, err
	}

	groups := make(map[int64]*ProjectGroup)
	for _, r := range scanned {
		g, ok := groups[r.project.ID]
		if !ok {
			g = &ProjectGroup{Project: r.project}
			groups[r.project.ID] = g
		}
		g.Communications = append(g.Communications, r.item)
	}
	return groups, nil
}

// ContactViewFlat returns the contact's communications across all
// projects as one timeline, newest first. A communication linked under
// multiple projects appears once per link.
func (e *Engine) ContactViewFlat(contactID int64) ([]Item, error) {
	scanned, err := e.contactRows(contactID)
	if err != nil {
		return nil, err
	}

	items := make([]Item, len(scanned))
	for i, r := range scanned {
		items[i] = r.item
	}
	return items, nil
}

func (e *Engine) contactRows(contactID int64) ([]pivotRow, error) {
	if _, err := e.st.GetContact(contactID); err != nil {
		return nil, err
	}

	rows, err := e.db.Query(pivotSelect+`
		WHERE pc.contact_id = ?
		ORDER BY c.timestamp DESC, c.id DESC
	`, contactID)
	if err != nil {
		return nil, err
	}
	return scanPivotRows(rows)
}

// ProjectMembers returns the contacts recorded as members of the project,
// with their optional role.
func (e *Engine) ProjectMembers(projectID int64) ([]Member, error) {
	if _, err := e.st.GetProject(projectID); err != nil {
		return nil, err
	}

	rows, err := e.db.Query(`
		SELECT ct.id, ct.name, ct.email, ct.phone, ct.notes, ct.ignored,
		       ct.created_at, ct.updated_at, pct.role
		FROM project_contacts pct
		JOIN contacts ct ON ct.id = pct.contact_id
		WHERE pct.project_id = ?
		ORDER BY ct.name IS NULL, ct.name, ct.email
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		ct := &m.Contact
		if err := rows.Scan(&ct.ID, &ct.Name, &ct.Email, &ct.Phone, &ct.Notes, &ct.Ignored,
			&ct.CreatedAt, &ct.UpdatedAt, &m.Role); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// Member is a contact's membership in a project.
type Member struct {
	Contact store.Contact
	Role    sql.NullString
}
