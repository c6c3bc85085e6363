package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/yegors/voicenote/pkg/logger"
)

// TranscriptionStorage handles storage of relay invocation records
type TranscriptionStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewTranscriptionStorage creates a new SQLite transcription storage
func NewTranscriptionStorage(db *sql.DB, log *logger.Logger) (*TranscriptionStorage, error) {
	storage := &TranscriptionStorage{
		db:     db,
		logger: log.Named("sqlite-transcriptions"),
	}

	if err := storage.initDB(); err != nil {
		return nil, err
	}

	return storage, nil
}

// initDB initializes the database tables
func (s *TranscriptionStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS transcriptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			request_id TEXT NOT NULL,
			audio_chars INTEGER NOT NULL,
			audio_bytes INTEGER NOT NULL,
			status_code INTEGER NOT NULL,
			text_length INTEGER NOT NULL,
			error_kind TEXT,
			error_message TEXT,
			duration_ms INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create transcriptions table: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_transcriptions_created_at ON transcriptions(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_transcriptions_status ON transcriptions(status_code)`,
	}
	for _, indexSQL := range indexes {
		if _, err := s.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create transcription index: %w", err)
		}
	}

	return nil
}

// Store stores a transcription record and returns its ID
func (s *TranscriptionStorage) Store(record *TranscriptionRecord) (int64, error) {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.Exec(
		`INSERT INTO transcriptions
		(request_id, audio_chars, audio_bytes, status_code, text_length, error_kind, error_message, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.RequestID,
		record.AudioChars,
		record.AudioBytes,
		record.StatusCode,
		record.TextLength,
		nullString(record.ErrorKind),
		nullString(record.ErrorMessage),
		record.DurationMs,
		record.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transcription: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	record.ID = id

	return id, nil
}

// GetRecent returns the most recent records, newest first
func (s *TranscriptionStorage) GetRecent(limit int) ([]*TranscriptionRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, request_id, audio_chars, audio_bytes, status_code, text_length, error_kind, error_message, duration_ms, created_at
		FROM transcriptions
		ORDER BY id DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent transcriptions: %w", err)
	}
	defer rows.Close()

	var records []*TranscriptionRecord
	for rows.Next() {
		var record TranscriptionRecord
		var errorKind, errorMessage sql.NullString
		var createdAt string

		if err := rows.Scan(
			&record.ID,
			&record.RequestID,
			&record.AudioChars,
			&record.AudioBytes,
			&record.StatusCode,
			&record.TextLength,
			&errorKind,
			&errorMessage,
			&record.DurationMs,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transcription: %w", err)
		}

		record.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		record.ErrorKind = errorKind.String
		record.ErrorMessage = errorMessage.String

		records = append(records, &record)
	}

	return records, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
