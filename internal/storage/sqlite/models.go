package sqlite

import "time"

// TranscriptionRecord is one relay invocation in the audit log
type TranscriptionRecord struct {
	ID           int64     `json:"id"`
	RequestID    string    `json:"request_id"`
	AudioChars   int       `json:"audio_chars"`   // length of the base64 field
	AudioBytes   int       `json:"audio_bytes"`   // decoded size
	StatusCode   int       `json:"status_code"`
	TextLength   int       `json:"text_length"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// DraftRecord is a note draft seeded from a transcription
type DraftRecord struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Source    string    `json:"source"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
