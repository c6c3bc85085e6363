// Package whisper calls the external speech-recognition API.
package whisper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/yegors/voicenote/internal/apperrors"
	"github.com/yegors/voicenote/pkg/logger"
)

const (
	// maxErrorBodyChars bounds how much of an upstream error body is echoed back
	maxErrorBodyChars = 2048
	// maxErrorBodyBytes bounds how much of an upstream error body is buffered
	maxErrorBodyBytes = 1 << 20
)

type errorBodyKey struct{}

// errorBody receives the raw body of a failed upstream response
type errorBody struct {
	data []byte
}

// Config represents the configuration for the speech-recognition client
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Language       string
	TimeoutSeconds int // 0 means no timeout
}

// Client sends audio to the OpenAI transcription endpoint. It makes exactly
// one attempt per call.
type Client struct {
	config Config
	api    openai.Client
	logger *logger.Logger
}

// NewClient creates a new speech-recognition client. An empty API key is
// accepted; every Transcribe call then fails with a configuration error.
func NewClient(config Config, logger *logger.Logger) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
		option.WithMiddleware(captureErrorBody),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	if config.TimeoutSeconds > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(config.TimeoutSeconds)*time.Second))
	}

	return &Client{
		config: config,
		api:    openai.NewClient(opts...),
		logger: logger.Named("whisper"),
	}
}

// Configured reports whether an API key is present
func (c *Client) Configured() bool {
	return c.config.APIKey != ""
}

// Transcribe uploads audio as a multipart file and returns only the text
// field of the response.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename, mimeType string) (string, error) {
	if !c.Configured() {
		return "", apperrors.New(apperrors.KindConfig, "transcribe", "API key is not configured")
	}

	c.logger.Debug("Sending audio to speech API",
		logger.String("model", c.config.Model),
		logger.String("language", c.config.Language),
		logger.Int("bytes", len(audio)))

	raw := &errorBody{}
	ctx = context.WithValue(ctx, errorBodyKey{}, raw)

	start := time.Now()
	resp, err := c.api.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:     openai.File(bytes.NewReader(audio), filename, mimeType),
		Model:    openai.AudioModel(c.config.Model),
		Language: openai.String(c.config.Language),
	})
	if err != nil {
		return "", c.classify(err, raw.data)
	}

	c.logger.Debug("Speech API responded",
		logger.Duration("duration", time.Since(start)),
		logger.Int("text_length", len(resp.Text)))

	return resp.Text, nil
}

// classify turns an SDK error into an upstream failure carrying the status
// and the raw response body. The request, and with it the API key, is never
// included.
func (c *Client) classify(err error, rawBody []byte) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		body := strings.TrimSpace(string(rawBody))
		if body == "" {
			body = strings.TrimSpace(apiErr.RawJSON())
		}
		if body == "" && apiErr.Response != nil {
			body = apiErr.Response.Status
		}
		if len(body) > maxErrorBodyChars {
			body = body[:maxErrorBodyChars]
		}

		c.logger.Warn("Speech API returned an error",
			logger.Int("status", apiErr.StatusCode),
			logger.String("body", body))

		return apperrors.Wrap(apperrors.KindUpstreamAPIFailure, "transcribe",
			fmt.Sprintf("speech API error (%d): %s", apiErr.StatusCode, body),
			fmt.Errorf("upstream status %d", apiErr.StatusCode))
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperrors.Wrap(apperrors.KindUpstreamAPIFailure, "transcribe",
			"speech API request did not complete", err)
	}

	return apperrors.Wrap(apperrors.KindUpstreamAPIFailure, "transcribe",
		"speech API request failed", err)
}

// captureErrorBody copies the body of a failed response into the errorBody
// carried by the request context, then hands the SDK an identical body
func captureErrorBody(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
	resp, err := next(req)
	if err != nil || resp == nil || resp.StatusCode < http.StatusBadRequest {
		return resp, err
	}

	raw, ok := req.Context().Value(errorBodyKey{}).(*errorBody)
	if !ok || resp.Body == nil {
		return resp, err
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	resp.Body.Close()
	raw.data = data
	resp.Body = io.NopCloser(bytes.NewReader(data))

	return resp, nil
}
