package sqlite

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/voicenote/pkg/logger"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "voicenote.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTranscriptionStorageStoreAndGetRecent(t *testing.T) {
	storage, err := NewTranscriptionStorage(openTestDB(t), logger.NewNop())
	require.NoError(t, err)

	first := &TranscriptionRecord{RequestID: "req-1", AudioChars: 8, AudioBytes: 6, StatusCode: 200, TextLength: 13, DurationMs: 120}
	second := &TranscriptionRecord{
		RequestID:    "req-2",
		AudioChars:   4,
		AudioBytes:   3,
		StatusCode:   500,
		ErrorKind:    "upstream_api_failure",
		ErrorMessage: "speech API error (429): rate limited",
	}

	id, err := storage.Store(first)
	require.NoError(t, err)
	assert.Equal(t, id, first.ID)
	_, err = storage.Store(second)
	require.NoError(t, err)

	records, err := storage.GetRecent(10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "req-2", records[0].RequestID)
	assert.Equal(t, 500, records[0].StatusCode)
	assert.Equal(t, "upstream_api_failure", records[0].ErrorKind)
	assert.Equal(t, "speech API error (429): rate limited", records[0].ErrorMessage)

	assert.Equal(t, "req-1", records[1].RequestID)
	assert.Empty(t, records[1].ErrorKind)
	assert.EqualValues(t, 120, records[1].DurationMs)
	assert.False(t, records[1].CreatedAt.IsZero())

	limited, err := storage.GetRecent(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStoragesShareDatabase(t *testing.T) {
	db := openTestDB(t)

	_, err := NewTranscriptionStorage(db, logger.NewNop())
	require.NoError(t, err)
	drafts, err := NewDraftStorage(db, logger.NewNop())
	require.NoError(t, err)

	// Re-opening is idempotent
	_, err = NewDraftStorage(db, logger.NewNop())
	require.NoError(t, err)

	_, err = drafts.StoreDraft(&DraftRecord{SessionID: "s1", Source: "microphone", Content: "merhaba dünya"})
	require.NoError(t, err)
	_, err = drafts.StoreDraft(&DraftRecord{SessionID: "s2", Source: "system", Content: "ikinci not"})
	require.NoError(t, err)

	got, err := drafts.GetRecentDrafts(5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ikinci not", got[0].Content)
	assert.Equal(t, "system", got[0].Source)
	assert.Equal(t, "merhaba dünya", got[1].Content)
}

func TestGetRecentOnEmptyTable(t *testing.T) {
	storage, err := NewTranscriptionStorage(openTestDB(t), logger.NewNop())
	require.NoError(t, err)

	records, err := storage.GetRecent(10)
	require.NoError(t, err)
	assert.Empty(t, records)
}
