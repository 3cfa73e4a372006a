package store_test

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/wesm/projtrack/internal/store"
	"github.com/wesm/projtrack/internal/testutil"
)

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func sqlTime(t time.Time) sql.NullString {
	return sql.NullString{String: t.UTC().Format("2006-01-02 15:04:05"), Valid: true}
}

func mustUpsert(t *testing.T, st *store.Store, c *store.Communication) *store.Communication {
	t.Helper()
	out, err := st.UpsertCommunication(c)
	testutil.MustNoErr(t, err, "UpsertCommunication")
	return out
}

func emailComm(sourceID, subject string) *store.Communication {
	return &store.Communication{
		Type:      store.TypeEmail,
		Subject:   nullStr(subject),
		SourceID:  nullStr(sourceID),
		Timestamp: sqlTime(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
}

func TestUpsertCommunicationIdempotent(t *testing.T) {
	st := testutil.NewTestStore(t)

	first := mustUpsert(t, st, emailComm("msg-1", "Hello"))
	second := mustUpsert(t, st, emailComm("msg-1", "Hello"))

	if first.ID != second.ID {
		t.Errorf("same (type, source_id) created two rows: %d vs %d", first.ID, second.ID)
	}

	comms, err := st.ListCommunications()
	testutil.MustNoErr(t, err, "ListCommunications")
	if len(comms) != 1 {
		t.Errorf("communication count = %d, want 1", len(comms))
	}
}

func TestUpsertCommunicationRefreshesMutableFieldsOnly(t *testing.T) {
	st := testutil.NewTestStore(t)

	comm := mustUpsert(t, st, emailComm("msg-1", "Hello"))
	if comm.Status != store.StatusUnassigned {
		t.Fatalf("fresh status = %q, want unassigned", comm.Status)
	}

	// Triage decision happens between upserts.
	remindAt := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	testutil.MustNoErr(t, st.Snooze(comm.ID, remindAt), "Snooze")

	updated := mustUpsert(t, st, emailComm("msg-1", "Hello (edited)"))
	if updated.Subject.String != "Hello (edited)" {
		t.Errorf("subject = %q, want refreshed", updated.Subject.String)
	}
	if updated.Status != store.StatusSnoozed {
		t.Errorf("status = %q, want snoozed preserved across upsert", updated.Status)
	}
	if !updated.RemindAt.Valid {
		t.Error("remind_at cleared by upsert")
	}
}

func TestUpsertCommunicationDistinctSourceIDsPerType(t *testing.T) {
	st := testutil.NewTestStore(t)

	a := mustUpsert(t, st, emailComm("msg-1", "Email"))
	chat := &store.Communication{
		Type:     store.TypeChat,
		SourceID: nullStr("msg-1"),
	}
	b := mustUpsert(t, st, chat)

	if a.ID == b.ID {
		t.Error("same source_id under different types collapsed into one row")
	}
}

func TestUpsertCommunicationNoSourceIDNeverDeduplicates(t *testing.T) {
	st := testutil.NewTestStore(t)

	note := func() *store.Communication {
		return &store.Communication{Type: store.TypeNote, Content: nullStr("call summary")}
	}
	a := mustUpsert(t, st, note())
	b := mustUpsert(t, st, note())
	if a.ID == b.ID {
		t.Error("rows without source_id were deduplicated")
	}
}

func TestUpsertCommunicationInvalidType(t *testing.T) {
	st := testutil.NewTestStore(t)

	_, err := st.UpsertCommunication(&store.Communication{Type: "telegram"})
	if !errors.Is(err, store.ErrInvalidType) {
		t.Errorf("err = %v, want ErrInvalidType", err)
	}
}

func TestUpsertCommunicationIgnoredSender(t *testing.T) {
	st := testutil.NewTestStore(t)

	sender := mustContact(t, st, "spam@example.com", "Spammer", "")
	testutil.MustNoErr(t, st.IgnoreSender(sender.ID), "IgnoreSender")

	comm := emailComm("msg-1", "Buy now")
	comm.SenderContactID = sql.NullInt64{Int64: sender.ID, Valid: true}
	out := mustUpsert(t, st, comm)

	if out.Status != store.StatusIgnored {
		t.Errorf("status = %q, want ignored for flagged sender", out.Status)
	}
}

func TestSnoozeStateMachine(t *testing.T) {
	st := testutil.NewTestStore(t)
	remindAt := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	comm := mustUpsert(t, st, emailComm("msg-1", "Hello"))
	testutil.MustNoErr(t, st.Snooze(comm.ID, remindAt), "snooze from unassigned")
	testutil.MustNoErr(t, st.Snooze(comm.ID, remindAt.Add(time.Hour)), "re-snooze")

	got, err := st.GetCommunication(comm.ID)
	testutil.MustNoErr(t, err, "GetCommunication")
	if got.RemindAt.String != "2030-01-01 01:00:00" {
		t.Errorf("remind_at = %q, want re-snoozed time", got.RemindAt.String)
	}

	testutil.MustNoErr(t, st.MarkIgnored(comm.ID), "MarkIgnored")
	if err := st.Snooze(comm.ID, remindAt); !errors.Is(err, store.ErrInvalidStatus) {
		t.Errorf("snooze from ignored: err = %v, want ErrInvalidStatus", err)
	}
}

func TestSnoozeUnknownCommunication(t *testing.T) {
	st := testutil.NewTestStore(t)

	err := st.Snooze(9999, time.Now())
	if !errors.Is(err, store.ErrUnknownCommunication) {
		t.Errorf("err = %v, want ErrUnknownCommunication", err)
	}
}

func TestDueReminders(t *testing.T) {
	st := testutil.NewTestStore(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	// Three snoozed at staggered times and one assigned decoy.
	var ids []int64
	for i, offset := range []time.Duration{-2 * time.Hour, -time.Hour, 2 * time.Hour} {
		comm := mustUpsert(t, st, emailComm(fmt.Sprintf("msg-%d", i), "snoozed"))
		testutil.MustNoErr(t, st.Snooze(comm.ID, now.Add(offset)), "Snooze")
		ids = append(ids, comm.ID)
	}
	project, err := st.CreateProject("apollo", "")
	testutil.MustNoErr(t, err, "CreateProject")
	sender := mustContact(t, st, "x@example.com", "X", "")
	assigned := mustUpsert(t, st, emailComm("msg-assigned", "done"))
	_, err = st.Assign(assigned.ID, project.ID, sender.ID)
	testutil.MustNoErr(t, err, "Assign")

	due, err := st.DueReminders(now)
	testutil.MustNoErr(t, err, "DueReminders")

	if len(due) != 2 {
		t.Fatalf("due count = %d, want 2", len(due))
	}
	// Oldest reminder first.
	if due[0].ID != ids[0] || due[1].ID != ids[1] {
		t.Errorf("due order = [%d %d], want [%d %d]", due[0].ID, due[1].ID, ids[0], ids[1])
	}
	for _, d := range due {
		if d.Status != store.StatusUnassigned {
			t.Errorf("comm %d status = %q, want unassigned after sweep", d.ID, d.Status)
		}
		if d.RemindAt.Valid {
			t.Errorf("comm %d remind_at still set after sweep", d.ID)
		}
	}

	// The sweep is itself idempotent for a fixed now.
	again, err := st.DueReminders(now)
	testutil.MustNoErr(t, err, "DueReminders rerun")
	if len(again) != 0 {
		t.Errorf("rerun due count = %d, want 0", len(again))
	}

	// The not-yet-due one is untouched.
	later, err := st.GetCommunication(ids[2])
	testutil.MustNoErr(t, err, "GetCommunication")
	if later.Status != store.StatusSnoozed {
		t.Errorf("future reminder status = %q, want snoozed", later.Status)
	}
}

func TestListCommunicationsStatusFilter(t *testing.T) {
	st := testutil.NewTestStore(t)

	a := mustUpsert(t, st, emailComm("msg-1", "one"))
	b := mustUpsert(t, st, emailComm("msg-2", "two"))
	testutil.MustNoErr(t, st.MarkIgnored(b.ID), "MarkIgnored")

	unassigned, err := st.ListCommunications(store.StatusUnassigned)
	testutil.MustNoErr(t, err, "ListCommunications")
	if len(unassigned) != 1 || unassigned[0].ID != a.ID {
		t.Errorf("unassigned filter returned %d rows", len(unassigned))
	}

	all, err := st.ListCommunications()
	testutil.MustNoErr(t, err, "ListCommunications all")
	if len(all) != 2 {
		t.Errorf("unfiltered count = %d, want 2", len(all))
	}
}
