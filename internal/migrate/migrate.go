// Package migrate backfills the legacy flat emails table into the linked
// contacts/communications model. The runner is one-shot but safe to rerun:
// idempotency comes from the ledger's (type, source_id) key, so a rerun
// after partial completion only touches records not yet represented.
package migrate

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wesm/projtrack/internal/sender"
	"github.com/wesm/projtrack/internal/store"
)

// RecordError identifies a legacy record that could not be migrated and why.
type RecordError struct {
	MessageID string
	Reason    string
}

// Report aggregates the outcome of one migration run. A dry run produces
// the same counts a live run would from the same starting state.
type Report struct {
	Processed             int
	Skipped               int // already represented in the new model
	ContactsCreated       int
	CommunicationsCreated int
	LinksCreated          int
	SendersIgnored        int // legacy ignored_senders folded into contact flags
	DryRun                bool
	Errors                []RecordError
}

// Runner performs the legacy backfill against a store.
type Runner struct {
	st *store.Store
}

// NewRunner creates a migration runner.
func NewRunner(st *store.Store) *Runner {
	return &Runner{st: st}
}

// legacyEmail mirrors a row of the legacy flat table.
type legacyEmail struct {
	ID         int64
	MessageID  string
	Subject    sql.NullString
	Sender     sql.NullString
	ReceivedAt sql.NullString
	Snippet    sql.NullString
	RawPath    sql.NullString
	ProjectID  sql.NullInt64
	Status     string
	RemindAt   sql.NullString
}

// Run executes the migration. Every legacy email is processed in a single
// logical step: parse sender, resolve-or-create the contact, upsert the
// communication, and link it if the legacy record carried a project. A
// failure on one record is collected into the report and does not abort
// the batch. With dryRun the full write path executes inside a
// transaction that is rolled back at the end.
//
// The batch runs in one transaction, so cancellation (checked between
// records) commits nothing at all; resuming is just rerunning, and the
// idempotency key makes already-migrated records cheap skips.
func (r *Runner) Run(ctx context.Context, dryRun bool) (*Report, error) {
	report := &Report{DryRun: dryRun}

	body := func(tx *store.Tx) error {
		emails, err := loadLegacyEmails(tx)
		if err != nil {
			return fmt.Errorf("load legacy emails: %w", err)
		}

		for _, e := range emails {
			if err := ctx.Err(); err != nil {
				return err
			}

			report.Processed++

			// Each record migrates inside a savepoint so one bad
			// record leaves no partial rows behind. Its deltas are
			// merged only on success: a rolled-back record must not
			// count rows the savepoint just discarded.
			var d recordDelta
			err := tx.Savepoint(func() error {
				var err error
				d, err = r.migrateOne(tx, e)
				return err
			})
			if err != nil {
				report.Errors = append(report.Errors, RecordError{
					MessageID: e.MessageID,
					Reason:    err.Error(),
				})
				continue
			}
			if d.skipped {
				report.Skipped++
			}
			report.ContactsCreated += d.contacts
			report.CommunicationsCreated += d.communications
			report.LinksCreated += d.links
		}

		n, err := foldIgnoredSenders(tx, report)
		if err != nil {
			return fmt.Errorf("fold ignored senders: %w", err)
		}
		report.SendersIgnored = n
		return nil
	}

	var err error
	if dryRun {
		err = r.st.WithTxRollback(body)
	} else {
		err = r.st.WithTx(body)
	}
	if err != nil {
		return report, err
	}
	return report, nil
}

func loadLegacyEmails(tx *store.Tx) ([]legacyEmail, error) {
	rows, err := tx.Query(`
		SELECT id, message_id, subject, sender, received_at, snippet,
		       raw_path, project_id, status, remind_at
		FROM emails
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emails []legacyEmail
	for rows.Next() {
		var e legacyEmail
		if err := rows.Scan(&e.ID, &e.MessageID, &e.Subject, &e.Sender, &e.ReceivedAt,
			&e.Snippet, &e.RawPath, &e.ProjectID, &e.Status, &e.RemindAt); err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}

// recordDelta is one record's contribution to the report, held back
// until its savepoint releases.
type recordDelta struct {
	skipped        bool
	contacts       int
	communications int
	links          int
}

func (r *Runner) migrateOne(tx *store.Tx, e legacyEmail) (recordDelta, error) {
	var d recordDelta

	// Already represented? The idempotency key makes reruns cheap no-ops.
	var existing int64
	err := tx.QueryRow(`
		SELECT id FROM communications WHERE type = ? AND source_id = ?
	`, store.TypeEmail, e.MessageID).Scan(&existing)
	if err == nil {
		d.skipped = true
		return d, nil
	}
	if err != sql.ErrNoRows {
		return d, err
	}

	name, email := sender.Parse(e.Sender.String)
	contact, created, err := tx.ResolveOrCreateContact(email, name, "")
	if err != nil {
		return d, fmt.Errorf("resolve contact from %q: %w", e.Sender.String, err)
	}
	if created {
		d.contacts++
	}

	comm, commCreated, err := tx.UpsertCommunication(&store.Communication{
		Type:            store.TypeEmail,
		Subject:         e.Subject,
		Snippet:         e.Snippet,
		Timestamp:       e.ReceivedAt,
		RawPath:         e.RawPath,
		SourceID:        sql.NullString{String: e.MessageID, Valid: true},
		SenderContactID: sql.NullInt64{Int64: contact.ID, Valid: true},
	})
	if err != nil {
		return d, fmt.Errorf("upsert communication: %w", err)
	}
	if commCreated {
		d.communications++
	}

	if e.ProjectID.Valid {
		_, linkCreated, err := tx.Assign(comm.ID, e.ProjectID.Int64, contact.ID)
		if err != nil {
			return d, fmt.Errorf("link to project %d: %w", e.ProjectID.Int64, err)
		}
		if linkCreated {
			d.links++
		}
	}

	// Carry the human's legacy triage decision over verbatim, last, so it
	// wins over the status transitions the upsert and link steps apply.
	if err := tx.SetCommunicationStatus(comm.ID, e.Status, e.RemindAt); err != nil {
		return d, fmt.Errorf("carry status: %w", err)
	}

	return d, nil
}

// foldIgnoredSenders maps legacy ignored_senders rows onto contact flags,
// creating the contact when the address was never seen as a sender.
func foldIgnoredSenders(tx *store.Tx, report *Report) (int, error) {
	rows, err := tx.Query(`SELECT email FROM ignored_senders ORDER BY email`)
	if err != nil {
		return 0, err
	}
	var addrs []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			rows.Close()
			return 0, err
		}
		addrs = append(addrs, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	folded := 0
	for _, raw := range addrs {
		name, email := sender.Parse(raw)
		if email == "" {
			report.Errors = append(report.Errors, RecordError{
				MessageID: raw,
				Reason:    "ignored sender has no parseable address",
			})
			continue
		}
		contact, created, err := tx.ResolveOrCreateContact(email, name, "")
		if err != nil {
			return folded, err
		}
		if created {
			report.ContactsCreated++
		}
		if !contact.Ignored {
			if err := tx.SetContactIgnored(contact.ID); err != nil {
				return folded, err
			}
			folded++
		}
	}
	return folded, nil
}
