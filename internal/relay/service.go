// Package relay accepts base64-encoded audio, forwards it to the speech API
// and returns the recognized text.
package relay

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/yegors/voicenote/internal/apperrors"
	"github.com/yegors/voicenote/internal/audio"
	"github.com/yegors/voicenote/internal/storage/sqlite"
	"github.com/yegors/voicenote/internal/whisper"
	"github.com/yegors/voicenote/pkg/logger"
)

const (
	uploadFilename = "audio.webm"
	uploadMimeType = audio.MimeTypeWebM
)

// Transcriber is the upstream speech-recognition client
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename, mimeType string) (string, error)
	Configured() bool
}

// AuditStore records relay invocations
type AuditStore interface {
	Store(record *sqlite.TranscriptionRecord) (int64, error)
	GetRecent(limit int) ([]*sqlite.TranscriptionRecord, error)
}

// Ensure the concrete clients implement the interfaces
var (
	_ Transcriber = (*whisper.Client)(nil)
	_ AuditStore  = (*sqlite.TranscriptionStorage)(nil)
)

// Config represents the relay service configuration
type Config struct {
	DecodeChunkSize int
}

// Service decodes audio and forwards it upstream in a single attempt
type Service struct {
	config      Config
	transcriber Transcriber
	audit       AuditStore
	logger      *logger.Logger
}

// NewService creates a new relay service. audit may be nil.
func NewService(config Config, transcriber Transcriber, audit AuditStore, logger *logger.Logger) *Service {
	if config.DecodeChunkSize <= 0 {
		config.DecodeChunkSize = audio.DefaultDecodeChunkSize
	}

	return &Service{
		config:      config,
		transcriber: transcriber,
		audit:       audit,
		logger:      logger.Named("relay"),
	}
}

// Configured reports whether the upstream API key is present
func (s *Service) Configured() bool {
	return s.transcriber.Configured()
}

// Transcribe decodes audioBase64 and returns the upstream transcript.
// Every failure is an *apperrors.Error.
func (s *Service) Transcribe(ctx context.Context, requestID, audioBase64 string) (string, error) {
	log := s.logger.WithRequestID(requestID)
	start := time.Now()

	record := &sqlite.TranscriptionRecord{
		RequestID:  requestID,
		AudioChars: len(audioBase64),
	}

	text, err := s.transcribe(ctx, log, audioBase64, record)

	record.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		record.StatusCode = http.StatusInternalServerError
		record.ErrorKind = string(apperrors.KindOf(err))
		record.ErrorMessage = apperrors.UserMessage(err)
		log.Error("Transcription failed",
			logger.String("kind", record.ErrorKind),
			logger.Error(err))
	} else {
		record.StatusCode = http.StatusOK
		record.TextLength = len(text)
		log.Info("Transcription completed",
			logger.Int("audio_bytes", record.AudioBytes),
			logger.Int("text_length", record.TextLength),
			logger.Int64("duration_ms", record.DurationMs))
	}
	s.storeRecord(log, record)

	return text, err
}

func (s *Service) transcribe(ctx context.Context, log *logger.Logger, audioBase64 string, record *sqlite.TranscriptionRecord) (string, error) {
	if audioBase64 == "" {
		return "", apperrors.New(apperrors.KindInvalidRequest, "relay", "audio data not found")
	}

	data, err := audio.DecodeBase64Chunks(audioBase64, s.config.DecodeChunkSize)
	if err != nil {
		if errors.Is(err, audio.ErrEmptyPayload) {
			return "", apperrors.New(apperrors.KindInvalidRequest, "relay", "audio data not found")
		}
		return "", apperrors.Wrap(apperrors.KindEncodingFailure, "relay", "audio data could not be decoded", err)
	}
	record.AudioBytes = len(data)

	log.Debug("Decoded audio",
		logger.Int("base64_chars", len(audioBase64)),
		logger.Int("bytes", len(data)))

	text, err := s.transcriber.Transcribe(ctx, data, uploadFilename, uploadMimeType)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindUpstreamAPIFailure, "relay", "speech API request failed", err)
	}
	log.Debug("Transcript received", logger.String("text", text))

	return text, nil
}

// storeRecord writes the audit record; failures are logged only
func (s *Service) storeRecord(log *logger.Logger, record *sqlite.TranscriptionRecord) {
	if s.audit == nil {
		return
	}
	if _, err := s.audit.Store(record); err != nil {
		log.Warn("Failed to store transcription record", logger.Error(err))
	}
}

// RecentTranscriptions returns the newest audit records.
// It returns a storage error when the audit log is disabled.
func (s *Service) RecentTranscriptions(limit int) ([]*sqlite.TranscriptionRecord, error) {
	if s.audit == nil {
		return nil, apperrors.New(apperrors.KindStorage, "history", "transcription history is disabled")
	}

	records, err := s.audit.GetRecent(limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorage, "history", "failed to load transcription history", err)
	}
	return records, nil
}
