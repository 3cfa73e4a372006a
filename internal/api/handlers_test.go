package api_test

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wesm/projtrack/internal/api"
	"github.com/wesm/projtrack/internal/config"
	"github.com/wesm/projtrack/internal/store"
	"github.com/wesm/projtrack/internal/testutil"
)

func newTestServer(t *testing.T, apiKey string) (*api.Server, *store.Store) {
	t.Helper()
	st := testutil.NewTestStore(t)
	cfg := &config.Config{}
	cfg.Server.APIKey = apiKey
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return api.NewServer(cfg, st, logger), st
}

func doRequest(t *testing.T, srv *api.Server, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		testutil.MustNoErr(t, err, "marshal body")
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rec.Body.String())
	}
}

func TestHealthNoAuth(t *testing.T) {
	srv, _ := newTestServer(t, "secret")

	rec := doRequest(t, srv, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	srv, _ := newTestServer(t, "secret")

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/stats", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing key status = %d, want 401", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/stats", nil, map[string]string{"X-API-Key": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong key status = %d, want 401", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/stats", nil, map[string]string{"X-API-Key": "secret"})
	if rec.Code != http.StatusOK {
		t.Errorf("valid key status = %d, want 200", rec.Code)
	}
}

func TestAuthDisabledWhenNoKey(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/stats", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with auth disabled", rec.Code)
	}
}

func TestCreateAndListProjects(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/projects",
		map[string]string{"name": "apollo", "description": "moon shot"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/projects", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var projects []map[string]interface{}
	decodeBody(t, rec, &projects)
	if len(projects) != 1 || projects[0]["name"] != "apollo" {
		t.Errorf("projects = %v", projects)
	}
}

func TestAssignEndpoint(t *testing.T) {
	srv, st := newTestServer(t, "")

	project, err := st.CreateProject("apollo", "")
	testutil.MustNoErr(t, err, "CreateProject")
	contact, err := st.ResolveOrCreateContact("jane@example.com", "Jane", "")
	testutil.MustNoErr(t, err, "ResolveOrCreateContact")
	comm, err := st.UpsertCommunication(&store.Communication{
		Type:     store.TypeEmail,
		SourceID: sql.NullString{String: "m1", Valid: true},
	})
	testutil.MustNoErr(t, err, "UpsertCommunication")

	body := map[string]int64{"project_id": project.ID, "contact_id": contact.ID}
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/communications/1/assign", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("assign status = %d: %s", rec.Code, rec.Body.String())
	}

	got, err := st.GetCommunication(comm.ID)
	testutil.MustNoErr(t, err, "GetCommunication")
	if got.Status != store.StatusAssigned {
		t.Errorf("status = %q, want assigned", got.Status)
	}
}

func TestAssignUnknownIDs(t *testing.T) {
	srv, st := newTestServer(t, "")

	_, err := st.UpsertCommunication(&store.Communication{
		Type:     store.TypeEmail,
		SourceID: sql.NullString{String: "m1", Valid: true},
	})
	testutil.MustNoErr(t, err, "UpsertCommunication")

	// Stale project id maps to 404.
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/communications/1/assign",
		map[string]int64{"project_id": 9999}, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("stale project status = %d, want 404", rec.Code)
	}

	// Stale communication id maps to 404.
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/communications/9999/assign",
		map[string]int64{"project_id": 1}, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("stale communication status = %d, want 404", rec.Code)
	}
}

func TestSnoozeEndpointValidation(t *testing.T) {
	srv, st := newTestServer(t, "")

	comm, err := st.UpsertCommunication(&store.Communication{
		Type:     store.TypeEmail,
		SourceID: sql.NullString{String: "m1", Valid: true},
	})
	testutil.MustNoErr(t, err, "UpsertCommunication")

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/communications/1/snooze",
		map[string]string{"remind_at": "not-a-time"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad time status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/communications/1/snooze",
		map[string]string{"remind_at": "2030-01-01T00:00:00Z"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("snooze status = %d: %s", rec.Code, rec.Body.String())
	}

	got, err := st.GetCommunication(comm.ID)
	testutil.MustNoErr(t, err, "GetCommunication")
	if got.Status != store.StatusSnoozed {
		t.Errorf("status = %q, want snoozed", got.Status)
	}

	// Snoozing an ignored communication is a state-machine violation.
	testutil.MustNoErr(t, st.MarkIgnored(comm.ID), "MarkIgnored")
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/communications/1/snooze",
		map[string]string{"remind_at": "2030-01-01T00:00:00Z"}, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid transition status = %d, want 422", rec.Code)
	}
}

func TestIgnoreEndpointFlagsSender(t *testing.T) {
	srv, st := newTestServer(t, "")

	contact, err := st.ResolveOrCreateContact("spam@example.com", "Spammer", "")
	testutil.MustNoErr(t, err, "ResolveOrCreateContact")
	comm, err := st.UpsertCommunication(&store.Communication{
		Type:            store.TypeEmail,
		SourceID:        sql.NullString{String: "m1", Valid: true},
		SenderContactID: sql.NullInt64{Int64: contact.ID, Valid: true},
	})
	testutil.MustNoErr(t, err, "UpsertCommunication")

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/communications/1/ignore", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ignore status = %d: %s", rec.Code, rec.Body.String())
	}

	gotComm, err := st.GetCommunication(comm.ID)
	testutil.MustNoErr(t, err, "GetCommunication")
	if gotComm.Status != store.StatusIgnored {
		t.Errorf("communication status = %q, want ignored", gotComm.Status)
	}
	gotContact, err := st.GetContact(contact.ID)
	testutil.MustNoErr(t, err, "GetContact")
	if !gotContact.Ignored {
		t.Error("sender not flagged")
	}
}

func TestContactViewEndpoint(t *testing.T) {
	srv, st := newTestServer(t, "")

	project, err := st.CreateProject("apollo", "")
	testutil.MustNoErr(t, err, "CreateProject")
	contact, err := st.ResolveOrCreateContact("jane@example.com", "Jane", "")
	testutil.MustNoErr(t, err, "ResolveOrCreateContact")
	comm, err := st.UpsertCommunication(&store.Communication{
		Type:     store.TypeEmail,
		Subject:  sql.NullString{String: "hello", Valid: true},
		SourceID: sql.NullString{String: "m1", Valid: true},
	})
	testutil.MustNoErr(t, err, "UpsertCommunication")
	_, err = st.Assign(comm.ID, project.ID, contact.ID)
	testutil.MustNoErr(t, err, "Assign")

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/contacts/1/communications", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("grouped status = %d", rec.Code)
	}
	var grouped map[string]struct {
		Project        map[string]interface{}   `json:"project"`
		Communications []map[string]interface{} `json:"communications"`
	}
	decodeBody(t, rec, &grouped)
	if len(grouped) != 1 {
		t.Fatalf("group count = %d, want 1", len(grouped))
	}
	for _, g := range grouped {
		if g.Project["name"] != "apollo" || len(g.Communications) != 1 {
			t.Errorf("group = %+v", g)
		}
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/contacts/1/communications?grouped=false", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("flat status = %d", rec.Code)
	}
	var flat []map[string]interface{}
	decodeBody(t, rec, &flat)
	if len(flat) != 1 {
		t.Errorf("flat count = %d, want 1", len(flat))
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/contacts/9999/communications", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown contact status = %d, want 404", rec.Code)
	}
}

func TestMigrateEndpointDryRun(t *testing.T) {
	srv, st := newTestServer(t, "")

	_, err := st.DB().Exec(`
		INSERT INTO emails (message_id, sender, subject) VALUES ('m1', 'x@example.com', 'hi')
	`)
	testutil.MustNoErr(t, err, "insert legacy email")

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/migrate?dry_run=true", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("migrate status = %d: %s", rec.Code, rec.Body.String())
	}
	var report struct {
		Processed int
		DryRun    bool
	}
	decodeBody(t, rec, &report)
	if !report.DryRun || report.Processed != 1 {
		t.Errorf("report = %+v", report)
	}

	comms, err := st.ListCommunications()
	testutil.MustNoErr(t, err, "ListCommunications")
	if len(comms) != 0 {
		t.Errorf("dry run persisted %d communications", len(comms))
	}
}
