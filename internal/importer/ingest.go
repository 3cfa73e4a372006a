// Package importer ingests raw .eml files into the communication ledger.
// It is the local-file ingestion adapter: parsing and raw storage happen
// here, outside the store's transaction boundary; the store only sees
// extracted metadata and a stable raw-path reference.
package importer

import (
	"bytes"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jhillyerd/enmime"

	"github.com/wesm/projtrack/internal/sender"
	"github.com/wesm/projtrack/internal/store"
)

// Ingestor parses .eml files and feeds them into the store.
type Ingestor struct {
	st     *store.Store
	rawDir string
	log    *slog.Logger
}

// NewIngestor creates an ingestor that copies raw files into rawDir.
// log must not be nil.
func NewIngestor(st *store.Store, rawDir string, log *slog.Logger) *Ingestor {
	return &Ingestor{st: st, rawDir: rawDir, log: log}
}

// Result describes one ingested file.
type Result struct {
	Communication *store.Communication
	Contact       *store.Contact // nil when the sender had no usable identity
}

// IngestFile parses one .eml file, resolves its sender, stores the raw
// bytes under the raw mail directory, and upserts the communication.
// Re-ingesting the same message (same Message-Id) refreshes the existing
// row without disturbing its triage status.
func (ing *Ingestor) IngestFile(path string) (*Result, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	messageID := strings.TrimSpace(env.GetHeader("Message-Id"))
	messageID = strings.Trim(messageID, "<>")
	if messageID == "" {
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		messageID = "local-" + stem
	}

	subject := strings.TrimSpace(env.GetHeader("Subject"))
	fromHeader := strings.TrimSpace(env.GetHeader("From"))

	var timestamp sql.NullString
	if date, err := env.Date(); err == nil && !date.IsZero() {
		timestamp = sql.NullString{String: date.UTC().Format("2006-01-02 15:04:05"), Valid: true}
	}

	storagePath, err := ing.storeRaw(messageID, raw)
	if err != nil {
		return nil, err
	}

	res := &Result{}

	name, email := sender.Parse(fromHeader)
	var senderID sql.NullInt64
	if name != "" || email != "" {
		contact, err := ing.st.ResolveOrCreateContact(email, name, "")
		if err != nil {
			return nil, fmt.Errorf("resolve sender %q: %w", fromHeader, err)
		}
		senderID = sql.NullInt64{Int64: contact.ID, Valid: true}
		res.Contact = contact
	} else {
		ing.log.Warn("message has no usable sender", "path", path, "message_id", messageID)
	}

	snippet := snippetFromBody(env.Text)

	comm, err := ing.st.UpsertCommunication(&store.Communication{
		Type:            store.TypeEmail,
		Subject:         sql.NullString{String: subject, Valid: subject != ""},
		Snippet:         sql.NullString{String: snippet, Valid: snippet != ""},
		Timestamp:       timestamp,
		RawPath:         sql.NullString{String: storagePath, Valid: true},
		SourceID:        sql.NullString{String: messageID, Valid: true},
		SenderContactID: senderID,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert communication: %w", err)
	}
	res.Communication = comm
	return res, nil
}

// IngestDir ingests every .eml file under dir (non-recursive), in name
// order for reproducible runs. Files that fail to ingest are logged and
// skipped; the count of successfully ingested files is returned.
func (ing *Ingestor) IngestDir(dir string) (int, []*Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".eml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var results []*Result
	count := 0
	for _, name := range names {
		res, err := ing.IngestFile(filepath.Join(dir, name))
		if err != nil {
			ing.log.Warn("skipping file", "file", name, "error", err)
			continue
		}
		results = append(results, res)
		count++
	}
	return count, results, nil
}

// storeRaw copies the raw message bytes into the raw mail directory under
// a sanitized Message-Id stem and returns the storage path.
func (ing *Ingestor) storeRaw(messageID string, raw []byte) (string, error) {
	if err := os.MkdirAll(ing.rawDir, 0755); err != nil {
		return "", fmt.Errorf("create raw dir: %w", err)
	}
	path := filepath.Join(ing.rawDir, sanitizeStem(messageID)+".eml")
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return "", fmt.Errorf("write raw file: %w", err)
	}
	return path, nil
}

// sanitizeStem maps a message id onto a filesystem-safe file stem.
func sanitizeStem(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// snippetFromBody collapses the body's whitespace and truncates it to a
// short preview.
func snippetFromBody(body string) string {
	const maxLen = 200
	cleaned := strings.Join(strings.Fields(body), " ")
	runes := []rune(cleaned)
	if len(runes) <= maxLen {
		return cleaned
	}
	return string(runes[:maxLen-1]) + "…"
}
