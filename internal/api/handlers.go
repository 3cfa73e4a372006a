package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wesm/projtrack/internal/query"
	"github.com/wesm/projtrack/internal/store"
)

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ProjectJSON represents a project in responses.
type ProjectJSON struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// ContactJSON represents a contact in responses.
type ContactJSON struct {
	ID      int64  `json:"id"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Ignored bool   `json:"ignored,omitempty"`
}

// CommunicationJSON represents a communication in responses.
type CommunicationJSON struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Subject   string `json:"subject,omitempty"`
	Snippet   string `json:"snippet,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Status    string `json:"status"`
	RemindAt  string `json:"remind_at,omitempty"`
	SourceID  string `json:"source_id,omitempty"`
}

// ItemJSON pairs a communication with its contact.
type ItemJSON struct {
	Communication CommunicationJSON `json:"communication"`
	Contact       ContactJSON       `json:"contact"`
}

// GroupJSON is one project's group in the contact pivot.
type GroupJSON struct {
	Project        ProjectJSON `json:"project"`
	Communications []ItemJSON  `json:"communications"`
}

func projectJSON(p *store.Project) ProjectJSON {
	return ProjectJSON{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description.String,
		CreatedAt:   p.CreatedAt,
	}
}

func contactJSON(c *store.Contact) ContactJSON {
	return ContactJSON{
		ID:      c.ID,
		Name:    c.Name.String,
		Email:   c.Email.String,
		Phone:   c.Phone.String,
		Ignored: c.Ignored,
	}
}

func communicationJSON(c *store.Communication) CommunicationJSON {
	return CommunicationJSON{
		ID:        c.ID,
		Type:      c.Type,
		Subject:   c.Subject.String,
		Snippet:   c.Snippet.String,
		Timestamp: c.Timestamp.String,
		Status:    c.Status,
		RemindAt:  c.RemindAt.String,
		SourceID:  c.SourceID.String,
	}
}

func itemsJSON(items []query.Item) []ItemJSON {
	out := make([]ItemJSON, len(items))
	for i := range items {
		out[i] = ItemJSON{
			Communication: communicationJSON(&items[i].Communication),
			Contact:       contactJSON(&items[i].Contact),
		}
	}
	return out
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

// writeStoreError maps typed core failures onto HTTP statuses.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrUnknownProject),
		errors.Is(err, store.ErrUnknownCommunication),
		errors.Is(err, store.ErrUnknownContact):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, store.ErrInsufficientContactInfo),
		errors.Is(err, store.ErrInvalidType),
		errors.Is(err, store.ErrInvalidStatus):
		writeError(w, http.StatusUnprocessableEntity, "invalid", err.Error())
	default:
		s.logger.Error("internal error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

func urlID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.st.GetStats()
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"projects":       stats.ProjectCount,
		"contacts":       stats.ContactCount,
		"communications": stats.CommunicationCount,
		"links":          stats.LinkCount,
		"memberships":    stats.MembershipCount,
		"legacy_emails":  stats.LegacyEmailCount,
		"database_bytes": stats.DatabaseSize,
	})
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.st.ListProjects()
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	out := make([]ProjectJSON, len(projects))
	for i := range projects {
		out[i] = projectJSON(&projects[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}
	project, err := s.st.CreateProject(req.Name, req.Description)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, projectJSON(project))
}

func (s *Server) handleProjectView(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid project id")
		return
	}
	items, err := s.engine.ProjectView(id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, itemsJSON(items))
}

func (s *Server) handleProjectMembers(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid project id")
		return
	}
	members, err := s.engine.ProjectMembers(id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	type memberJSON struct {
		Contact ContactJSON `json:"contact"`
		Role    string      `json:"role,omitempty"`
	}
	out := make([]memberJSON, len(members))
	for i := range members {
		out[i] = memberJSON{
			Contact: contactJSON(&members[i].Contact),
			Role:    members[i].Role.String,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := s.st.ListContacts()
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	out := make([]ContactJSON, len(contacts))
	for i := range contacts {
		out[i] = contactJSON(&contacts[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// handleContactView serves the contact pivot. With ?grouped=true (the
// default) the response maps project ids to their groups; with
// ?grouped=false it is the flat timeline.
func (s *Server) handleContactView(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid contact id")
		return
	}

	if r.URL.Query().Get("grouped") == "false" {
		items, err := s.engine.ContactViewFlat(id)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, itemsJSON(items))
		return
	}

	groups, err := s.engine.ContactViewGrouped(id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	out := make(map[string]GroupJSON, len(groups))
	for pid, g := range groups {
		out[strconv.FormatInt(pid, 10)] = GroupJSON{
			Project:        projectJSON(&g.Project),
			Communications: itemsJSON(g.Communications),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListCommunications(w http.ResponseWriter, r *http.Request) {
	var statuses []string
	if st := r.URL.Query().Get("status"); st != "" {
		statuses = append(statuses, st)
	}
	comms, err := s.st.ListCommunications(statuses...)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	out := make([]CommunicationJSON, len(comms))
	for i := range comms {
		out[i] = communicationJSON(&comms[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid communication id")
		return
	}
	var req struct {
		ProjectID int64 `json:"project_id"`
		ContactID int64 `json:"contact_id"` // optional; falls back to sender
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}
	link, err := s.st.Assign(id, req.ProjectID, req.ContactID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"link_id":          link.ID,
		"project_id":       link.ProjectID,
		"communication_id": link.CommunicationID,
		"contact_id":       link.ContactID,
	})
}

func (s *Server) handleSnooze(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid communication id")
		return
	}
	var req struct {
		RemindAt string `json:"remind_at"` // RFC 3339
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}
	remindAt, err := time.Parse(time.RFC3339, req.RemindAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "remind_at must be RFC 3339")
		return
	}
	if err := s.st.Snooze(id, remindAt); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": store.StatusSnoozed})
}

// handleIgnore flags the communication's sender as ignored and marks the
// communication itself ignored.
func (s *Server) handleIgnore(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid communication id")
		return
	}
	comm, err := s.st.GetCommunication(id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if comm.SenderContactID.Valid {
		if err := s.st.IgnoreSender(comm.SenderContactID.Int64); err != nil {
			s.writeStoreError(w, err)
			return
		}
	}
	if err := s.st.MarkIgnored(id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": store.StatusIgnored})
}

func (s *Server) handleReminderSweep(w http.ResponseWriter, r *http.Request) {
	due, err := s.st.DueReminders(time.Now())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	out := make([]CommunicationJSON, len(due))
	for i := range due {
		out[i] = communicationJSON(&due[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMigrate(w http.ResponseWriter, r *http.Request) {
	dryRun := r.URL.Query().Get("dry_run") == "true"
	report, err := s.runner.Run(r.Context(), dryRun)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
