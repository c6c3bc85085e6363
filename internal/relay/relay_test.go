package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yegors/voicenote/internal/apperrors"
	"github.com/yegors/voicenote/internal/storage/sqlite"
	"github.com/yegors/voicenote/pkg/logger"
)

type fakeTranscriber struct {
	mu         sync.Mutex
	configured bool
	text       string
	err        error
	calls      int
	lastAudio  []byte
	lastName   string
	lastMime   string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audio []byte, filename, mimeType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastAudio = append([]byte(nil), audio...)
	f.lastName = filename
	f.lastMime = mimeType
	return f.text, f.err
}

func (f *fakeTranscriber) Configured() bool { return f.configured }

type memoryAudit struct {
	mu      sync.Mutex
	records []*sqlite.TranscriptionRecord
	err     error
}

func (m *memoryAudit) Store(record *sqlite.TranscriptionRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.records = append(m.records, record)
	return int64(len(m.records)), nil
}

func (m *memoryAudit) GetRecent(limit int) ([]*sqlite.TranscriptionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*sqlite.TranscriptionRecord
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.records[i])
	}
	return out, nil
}

func post(t *testing.T, h *Handler, body string) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/functions/v1/transcribe-audio", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Transcribe(rec, req)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	return rec, decoded
}

func TestServiceDecodesAndForwardsOnce(t *testing.T) {
	upstream := &fakeTranscriber{configured: true, text: "merhaba dünya"}
	audit := &memoryAudit{}
	service := NewService(Config{DecodeChunkSize: 8}, upstream, audit, logger.NewNop())

	raw := []byte("\x1aE\xdf\xa3 webm audio bytes spanning several decode steps")
	text, err := service.Transcribe(context.Background(), "req-1", base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)

	assert.Equal(t, "merhaba dünya", text)
	assert.Equal(t, 1, upstream.calls)
	assert.Equal(t, raw, upstream.lastAudio)
	assert.Equal(t, "audio.webm", upstream.lastName)
	assert.Equal(t, "audio/webm", upstream.lastMime)

	require.Len(t, audit.records, 1)
	assert.Equal(t, http.StatusOK, audit.records[0].StatusCode)
	assert.Equal(t, len(raw), audit.records[0].AudioBytes)
	assert.Equal(t, len("merhaba dünya"), audit.records[0].TextLength)
}

func TestServiceRejectsMissingAudioWithoutCallingUpstream(t *testing.T) {
	upstream := &fakeTranscriber{configured: true}
	service := NewService(Config{}, upstream, nil, logger.NewNop())

	_, err := service.Transcribe(context.Background(), "req", "")
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidRequest))

	_, err = service.Transcribe(context.Background(), "req", "not base64!!")
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindEncodingFailure))

	assert.Zero(t, upstream.calls)
}

func TestServiceAuditFailureDoesNotFailRequest(t *testing.T) {
	upstream := &fakeTranscriber{configured: true, text: "ok"}
	service := NewService(Config{}, upstream, &memoryAudit{err: errors.New("disk full")}, logger.NewNop())

	text, err := service.Transcribe(context.Background(), "req", base64.StdEncoding.EncodeToString([]byte("abc")))
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}

func TestHandlerSuccess(t *testing.T) {
	upstream := &fakeTranscriber{configured: true, text: "merhaba dünya"}
	h := NewHandler(NewService(Config{}, upstream, nil, logger.NewNop()), 0, logger.NewNop())

	rec, body := post(t, h, `{"audio":"`+base64.StdEncoding.EncodeToString([]byte("webm"))+`"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "merhaba dünya", body["text"])
	assert.Equal(t, []byte("webm"), upstream.lastAudio)
}

func TestHandlerFailuresAnswer500(t *testing.T) {
	upstreamErr := apperrors.Wrap(apperrors.KindUpstreamAPIFailure, "transcribe",
		"speech API error (429): {\"error\":\"rate limited\"}", errors.New("upstream status 429"))

	tests := []struct {
		name     string
		upstream *fakeTranscriber
		body     string
		want     string
	}{
		{
			name:     "upstream error carries status and body",
			upstream: &fakeTranscriber{configured: true, err: upstreamErr},
			body:     `{"audio":"d2VibQ=="}`,
			want:     "speech API error (429)",
		},
		{
			name:     "missing API key",
			upstream: &fakeTranscriber{err: apperrors.New(apperrors.KindConfig, "transcribe", "API key is not configured")},
			body:     `{"audio":"d2VibQ=="}`,
			want:     "API key is not configured",
		},
		{
			name:     "missing audio field",
			upstream: &fakeTranscriber{configured: true},
			body:     `{}`,
			want:     "audio data not found",
		},
		{
			name:     "malformed json",
			upstream: &fakeTranscriber{configured: true},
			body:     `{"audio":`,
			want:     "invalid request body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(NewService(Config{}, tt.upstream, nil, logger.NewNop()), 0, logger.NewNop())
			rec, body := post(t, h, tt.body)
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Contains(t, body["error"], tt.want)
			assert.NotContains(t, body, "text")
		})
	}
}

func TestHandlerBodyLimit(t *testing.T) {
	upstream := &fakeTranscriber{configured: true}
	h := NewHandler(NewService(Config{}, upstream, nil, logger.NewNop()), 16, logger.NewNop())

	rec, body := post(t, h, `{"audio":"`+strings.Repeat("A", 64)+`"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "audio data too large", body["error"])
	assert.Zero(t, upstream.calls)
}

func TestHandlerHealth(t *testing.T) {
	h := NewHandler(NewService(Config{}, &fakeTranscriber{}, nil, logger.NewNop()), 0, logger.NewNop())

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.False(t, resp.UpstreamConfigured)
}

func TestHandlerRecentTranscriptions(t *testing.T) {
	audit := &memoryAudit{}
	upstream := &fakeTranscriber{configured: true, text: "bir"}
	service := NewService(Config{}, upstream, audit, logger.NewNop())
	h := NewHandler(service, 0, logger.NewNop())

	for _, id := range []string{"a", "b", "c"} {
		_, err := service.Transcribe(context.Background(), id, "d2VibQ==")
		require.NoError(t, err)
	}

	rec := httptest.NewRecorder()
	h.RecentTranscriptions(rec, httptest.NewRequest(http.MethodGet, "/api/v1/transcriptions?limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, "c", resp.Transcriptions[0].RequestID)
	assert.Equal(t, "b", resp.Transcriptions[1].RequestID)

	rec = httptest.NewRecorder()
	h.RecentTranscriptions(rec, httptest.NewRequest(http.MethodGet, "/api/v1/transcriptions?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerRecentTranscriptionsDisabled(t *testing.T) {
	h := NewHandler(NewService(Config{}, &fakeTranscriber{}, nil, logger.NewNop()), 0, logger.NewNop())

	rec := httptest.NewRecorder()
	h.RecentTranscriptions(rec, httptest.NewRequest(http.MethodGet, "/api/v1/transcriptions", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type brokenWriter struct {
	header http.Header
	status int
}

func (w *brokenWriter) Header() http.Header     { return w.header }
func (w *brokenWriter) WriteHeader(status int) { w.status = status }
func (w *brokenWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestHandlerLogsResponseWriteFailure(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := &logger.Logger{Logger: zap.New(core)}
	h := NewHandler(NewService(Config{}, &fakeTranscriber{}, nil, logger.NewNop()), 0, log)

	w := &brokenWriter{header: http.Header{}}
	h.Health(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusOK, w.status)
	entries := logs.FilterMessage("Failed to write JSON response").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "connection reset", entries[0].ContextMap()["error"])
}
