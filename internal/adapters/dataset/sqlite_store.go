package dataset

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-triage/internal/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS labeled_emails (
	email_id     TEXT PRIMARY KEY,
	sender_name  TEXT NOT NULL DEFAULT '',
	sender_email TEXT NOT NULL DEFAULT '',
	subject      TEXT NOT NULL DEFAULT '',
	body         TEXT NOT NULL DEFAULT '',
	label        TEXT NOT NULL,
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_labeled_emails_label ON labeled_emails(label);
`

// SQLiteStore keeps human-labeled examples in a SQLite database
type SQLiteStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (creating if needed) the dataset database at path
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset database: %w", err)
	}

	// sqlite serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating dataset schema: %w", err)
	}

	logger.Debug("Opened dataset store", zap.String("path", path))

	return &SQLiteStore{db: db, logger: logger}, nil
}

// LoadExamples returns every labeled example in insertion order
func (s *SQLiteStore) LoadExamples(ctx context.Context) ([]core.LabeledExample, error) {
	examples := []core.LabeledExample{}
	err := s.db.SelectContext(ctx, &examples, `
		SELECT email_id, sender_name, sender_email, subject, body, label, created_at
		FROM labeled_emails
		ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("loading examples: %w", err)
	}
	return examples, nil
}

// Exists reports whether messageID has already been labeled
func (s *SQLiteStore) Exists(ctx context.Context, messageID string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(1) FROM labeled_emails WHERE email_id = ?`, messageID)
	if err != nil {
		return false, fmt.Errorf("checking example %s: %w", messageID, err)
	}
	return count > 0, nil
}

// SaveExample inserts or replaces a labeled example
func (s *SQLiteStore) SaveExample(ctx context.Context, example core.LabeledExample) error {
	if example.CreatedAt.IsZero() {
		example.CreatedAt = time.Now()
	}
	example.CreatedAt = example.CreatedAt.UTC()

	_, err := s.db.NamedExecContext(ctx, `
		INSERT OR REPLACE INTO labeled_emails (
			email_id, sender_name, sender_email, subject, body, label, created_at
		) VALUES (
			:email_id, :sender_name, :sender_email, :subject, :body, :label, :created_at
		)`, example)
	if err != nil {
		return fmt.Errorf("saving example %s: %w", example.MessageID, err)
	}
	return nil
}

// Count returns the number of labeled examples per label
func (s *SQLiteStore) Count(ctx context.Context) (map[string]int, error) {
	rows := []struct {
		Label string `db:"label"`
		N     int    `db:"n"`
	}{}
	if err := s.db.SelectContext(ctx, &rows, `SELECT label, COUNT(1) AS n FROM labeled_emails GROUP BY label`); err != nil {
		return nil, fmt.Errorf("counting examples: %w", err)
	}

	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Label] = r.N
	}
	return counts, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
