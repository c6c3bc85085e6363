package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/yegors/voicenote/internal/apperrors"
	"github.com/yegors/voicenote/pkg/logger"
)

// maxRelayResponseBytes caps how much of a relay response is read
const maxRelayResponseBytes = 1 << 20

// Ensure the HTTP client implements the interface
var _ RelayClient = (*HTTPRelayClient)(nil)

// HTTPRelayClient calls the transcription relay over HTTP
type HTTPRelayClient struct {
	url        string
	apiKey     string
	httpClient *http.Client
	logger     *logger.Logger
}

type relayRequest struct {
	Audio string `json:"audio"`
}

type relayResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

// NewHTTPRelayClient creates a relay client. A zero timeout means none;
// a hung relay then only blocks the processing session that called it.
func NewHTTPRelayClient(url, apiKey string, timeout time.Duration, logger *logger.Logger) *HTTPRelayClient {
	return &HTTPRelayClient{
		url:        url,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("relay-client"),
	}
}

// Transcribe posts {"audio": audioBase64} and returns the recognized text.
// Relay-reported errors are returned with the relay's message verbatim.
func (c *HTTPRelayClient) Transcribe(ctx context.Context, audioBase64 string) (string, error) {
	body, err := json.Marshal(relayRequest{Audio: audioBase64})
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindEncodingFailure, "relay",
			"The audio could not be processed.", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindRelayInvocationFailure, "relay",
			"The transcription service address is invalid.", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-client-info", "voicenote-go/1.0")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("apikey", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindRelayInvocationFailure, "relay",
			"Could not reach the transcription service.", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxRelayResponseBytes))
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindRelayInvocationFailure, "relay",
			"The transcription service response could not be read.", err)
	}

	c.logger.Debug("Relay responded",
		logger.Int("status", resp.StatusCode),
		logger.Int("bytes", len(raw)),
		logger.Duration("duration", time.Since(start)))

	var parsed relayResponse
	decodeErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode != http.StatusOK {
		msg := parsed.Error
		if decodeErr != nil || msg == "" {
			msg = fmt.Sprintf("The transcription service failed with status %d.", resp.StatusCode)
		}
		return "", apperrors.Wrap(apperrors.KindRelayInvocationFailure, "relay", msg,
			fmt.Errorf("relay status %d", resp.StatusCode))
	}

	if decodeErr != nil {
		return "", apperrors.Wrap(apperrors.KindRelayInvocationFailure, "relay",
			"The transcription service returned an unreadable response.", decodeErr)
	}
	if parsed.Error != "" {
		return "", apperrors.New(apperrors.KindRelayInvocationFailure, "relay", parsed.Error)
	}

	return parsed.Text, nil
}
