package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// Project is an organizational bucket with a lifecycle independent of
// communications. Projects are only created by explicit user action.
type Project struct {
	ID          int64
	Name        string
	Description sql.NullString
	CreatedAt   string
	UpdatedAt   string
}

// CreateProject creates a new project with the given name.
func (s *Store) CreateProject(name, description string) (*Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("project name cannot be empty")
	}

	result, err := s.db.Exec(`
		INSERT INTO projects (name, description)
		VALUES (?, ?)
	`, name, sql.NullString{String: description, Valid: description != ""})
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetProject(id)
}

// GetProject returns the project with the given id.
// Returns ErrUnknownProject if it does not exist.
func (s *Store) GetProject(id int64) (*Project, error) {
	p := &Project{}
	err := s.db.QueryRow(`
		SELECT id, name, description, created_at, updated_at
		FROM projects WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUnknownProject
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListProjects returns all projects ordered by creation time.
func (s *Store) ListProjects() ([]Project, error) {
	rows, err := s.db.Query(`
		SELECT id, name, description, created_at, updated_at
		FROM projects ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// projectExists reports whether a project row with the given id exists.
func projectExists(q dbtx, id int64) (bool, error) {
	var one int
	err := q.QueryRow(`SELECT 1 FROM projects WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
