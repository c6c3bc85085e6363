package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/yegors/voicenote/pkg/logger"
)

// DraftStorage stores note drafts seeded by voice capture
type DraftStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewDraftStorage creates a new SQLite draft storage
func NewDraftStorage(db *sql.DB, log *logger.Logger) (*DraftStorage, error) {
	storage := &DraftStorage{
		db:     db,
		logger: log.Named("sqlite-drafts"),
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS note_drafts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			source TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create note_drafts table: %w", err)
	}

	return storage, nil
}

// StoreDraft stores a draft and returns its ID
func (s *DraftStorage) StoreDraft(draft *DraftRecord) (int64, error) {
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.Exec(
		`INSERT INTO note_drafts (session_id, source, content, created_at) VALUES (?, ?, ?, ?)`,
		draft.SessionID,
		draft.Source,
		draft.Content,
		draft.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert draft: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	draft.ID = id

	s.logger.Debug("Stored note draft", logger.Int64("id", id), logger.Int("length", len(draft.Content)))
	return id, nil
}

// GetRecentDrafts returns the most recent drafts, newest first
func (s *DraftStorage) GetRecentDrafts(limit int) ([]*DraftRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, source, content, created_at
		FROM note_drafts
		ORDER BY id DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query drafts: %w", err)
	}
	defer rows.Close()

	var drafts []*DraftRecord
	for rows.Next() {
		var d DraftRecord
		var createdAt string
		if err := rows.Scan(&d.ID, &d.SessionID, &d.Source, &d.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan draft: %w", err)
		}
		if d.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		drafts = append(drafts, &d)
	}

	return drafts, rows.Err()
}
