package query_test

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wesm/projtrack/internal/query"
	"github.com/wesm/projtrack/internal/store"
	"github.com/wesm/projtrack/internal/testutil"
)

type fixture struct {
	st     *store.Store
	engine *query.Engine

	apollo  *store.Project
	gemini  *store.Project
	jane    *store.Contact
	bob     *store.Contact
	comms  map[string]*store.Communication
}

// newFixture builds a small linked graph:
//
//	apollo: jane (2 comms), bob (1 comm)
//	gemini: jane (1 comm)
func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := testutil.NewTestStore(t)
	f := &fixture{st: st, engine: query.NewEngine(st), comms: map[string]*store.Communication{}}

	var err error
	f.apollo, err = st.CreateProject("apollo", "")
	testutil.MustNoErr(t, err, "create apollo")
	f.gemini, err = st.CreateProject("gemini", "")
	testutil.MustNoErr(t, err, "create gemini")

	f.jane, err = st.ResolveOrCreateContact("jane@example.com", "Jane", "")
	testutil.MustNoErr(t, err, "create jane")
	f.bob, err = st.ResolveOrCreateContact("bob@example.com", "Bob", "")
	testutil.MustNoErr(t, err, "create bob")

	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	add := func(key, sourceID string, at time.Time, project *store.Project, contact *store.Contact) {
		comm, err := st.UpsertCommunication(&store.Communication{
			Type:      store.TypeEmail,
			Subject:   sql.NullString{String: key, Valid: true},
			SourceID:  sql.NullString{String: sourceID, Valid: true},
			Timestamp: sql.NullString{String: at.Format("2006-01-02 15:04:05"), Valid: true},
		})
		testutil.MustNoErr(t, err, "upsert "+key)
		_, err = st.Assign(comm.ID, project.ID, contact.ID)
		testutil.MustNoErr(t, err, "assign "+key)
		f.comms[key] = comm
	}

	add("apollo-jane-old", "m1", base, f.apollo, f.jane)
	add("apollo-jane-new", "m2", base.Add(2*time.Hour), f.apollo, f.jane)
	add("apollo-bob", "m3", base.Add(time.Hour), f.apollo, f.bob)
	add("gemini-jane", "m4", base.Add(3*time.Hour), f.gemini, f.jane)

	return f
}

func subjects(items []query.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Communication.Subject.String
	}
	return out
}

func TestProjectView(t *testing.T) {
	f := newFixture(t)

	items, err := f.engine.ProjectView(f.apollo.ID)
	testutil.MustNoErr(t, err, "ProjectView")

	want := []string{"apollo-jane-new", "apollo-bob", "apollo-jane-old"}
	if diff := cmp.Diff(want, subjects(items)); diff != "" {
		t.Errorf("project view order mismatch (-want +got):\n%s", diff)
	}

	// Contact is carried alongside each communication.
	if items[1].Contact.Email.String != "bob@example.com" {
		t.Errorf("apollo-bob paired with contact %q", items[1].Contact.Email.String)
	}
}

func TestProjectViewUnknownProject(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.ProjectView(9999)
	if !errors.Is(err, store.ErrUnknownProject) {
		t.Errorf("err = %v, want ErrUnknownProject", err)
	}
}

func TestContactViewGrouped(t *testing.T) {
	f := newFixture(t)

	groups, err := f.engine.ContactViewGrouped(f.jane.ID)
	testutil.MustNoErr(t, err, "ContactViewGrouped")

	if len(groups) != 2 {
		t.Fatalf("group count = %d, want 2", len(groups))
	}

	apollo := groups[f.apollo.ID]
	if apollo == nil {
		t.Fatal("missing apollo group")
	}
	want := []string{"apollo-jane-new", "apollo-jane-old"}
	if diff := cmp.Diff(want, subjects(apollo.Communications)); diff != "" {
		t.Errorf("apollo group mismatch (-want +got):\n%s", diff)
	}

	gemini := groups[f.gemini.ID]
	if gemini == nil {
		t.Fatal("missing gemini group")
	}
	if len(gemini.Communications) != 1 || gemini.Communications[0].Communication.Subject.String != "gemini-jane" {
		t.Errorf("gemini group = %v", subjects(gemini.Communications))
	}

	// Bob's comm never leaks into Jane's view.
	for _, g := range groups {
		for _, it := range g.Communications {
			if it.Contact.ID != f.jane.ID {
				t.Errorf("foreign contact %d in jane's view", it.Contact.ID)
			}
		}
	}
}

func TestContactViewFlat(t *testing.T) {
	f := newFixture(t)

	items, err := f.engine.ContactViewFlat(f.jane.ID)
	testutil.MustNoErr(t, err, "ContactViewFlat")

	want := []string{"gemini-jane", "apollo-jane-new", "apollo-jane-old"}
	if diff := cmp.Diff(want, subjects(items)); diff != "" {
		t.Errorf("flat view mismatch (-want +got):\n%s", diff)
	}
}

func TestContactViewUnknownContact(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.ContactViewGrouped(9999)
	if !errors.Is(err, store.ErrUnknownContact) {
		t.Errorf("err = %v, want ErrUnknownContact", err)
	}
}

func TestPivotsAgree(t *testing.T) {
	f := newFixture(t)

	// Every link visible from a project view is visible from the matching
	// contact view, and vice versa.
	type triple struct{ Project, Comm, Contact int64 }
	fromProjects := map[triple]bool{}
	for _, p := range []*store.Project{f.apollo, f.gemini} {
		items, err := f.engine.ProjectView(p.ID)
		testutil.MustNoErr(t, err, "ProjectView")
		for _, it := range items {
			fromProjects[triple{p.ID, it.Communication.ID, it.Contact.ID}] = true
		}
	}

	fromContacts := map[triple]bool{}
	for _, c := range []*store.Contact{f.jane, f.bob} {
		groups, err := f.engine.ContactViewGrouped(c.ID)
		testutil.MustNoErr(t, err, "ContactViewGrouped")
		for pid, g := range groups {
			for _, it := range g.Communications {
				fromContacts[triple{pid, it.Communication.ID, it.Contact.ID}] = true
			}
		}
	}

	if diff := cmp.Diff(fromProjects, fromContacts); diff != "" {
		t.Errorf("pivots disagree (-projects +contacts):\n%s", diff)
	}
}

func TestProjectMembers(t *testing.T) {
	f := newFixture(t)

	members, err := f.engine.ProjectMembers(f.apollo.ID)
	testutil.MustNoErr(t, err, "ProjectMembers")

	var emails []string
	for _, m := range members {
		emails = append(emails, m.Contact.Email.String)
	}
	want := []string{"bob@example.com", "jane@example.com"}
	if diff := cmp.Diff(want, emails); diff != "" {
		t.Errorf("members mismatch (-want +got):\n%s", diff)
	}
}

func TestProjectViewExcludesUnlinked(t *testing.T) {
	f := newFixture(t)

	// An unassigned communication shows up in neither pivot.
	_, err := f.st.UpsertCommunication(&store.Communication{
		Type:     store.TypeEmail,
		Subject:  sql.NullString{String: "untriaged", Valid: true},
		SourceID: sql.NullString{String: fmt.Sprintf("m%d", 99), Valid: true},
	})
	testutil.MustNoErr(t, err, "upsert untriaged")

	items, err := f.engine.ProjectView(f.apollo.ID)
	testutil.MustNoErr(t, err, "ProjectView")
	for _, it := range items {
		if it.Communication.Subject.String == "untriaged" {
			t.Error("unassigned communication leaked into project view")
		}
	}
}
