// Package transcribe implements the Transcription port named in spec.md
// §6: transcribe(ogg_bytes) -> text. No speech-to-text client library
// appears anywhere in the retrieval pack, so this is a small net/http
// wrapper around an OpenAI-compatible multipart transcription endpoint —
// stdlib is the right tool here, not a gap; see DESIGN.md.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/clawbridge/internal/ports"
)

// defaultEndpoint is OpenAI's audio transcription endpoint; operators
// pointing at a compatible provider override it via url.
const defaultEndpoint = "https://api.openai.com/v1/audio/transcriptions"

// HTTPClient implements ports.Transcription over a multipart POST of the
// voice note's raw Ogg/Opus bytes.
type HTTPClient struct {
	APIKey   string
	Endpoint string
	Model    string
	client   *http.Client
}

var _ ports.Transcription = (*HTTPClient)(nil)

// New builds an HTTPClient. endpoint defaults to OpenAI's transcription API
// when empty; model defaults to "whisper-1".
func New(apiKey, endpoint, model string) *HTTPClient {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if model == "" {
		model = "whisper-1"
	}
	return &HTTPClient{
		APIKey:   apiKey,
		Endpoint: endpoint,
		Model:    model,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

func (c *HTTPClient) Transcribe(ctx context.Context, oggBytes []byte) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("file", "voice.ogg")
	if err != nil {
		return "", fmt.Errorf("transcribe: build form: %w", err)
	}
	if _, err := part.Write(oggBytes); err != nil {
		return "", fmt.Errorf("transcribe: write audio: %w", err)
	}
	if err := w.WriteField("model", c.Model); err != nil {
		return "", fmt.Errorf("transcribe: write model field: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("transcribe: close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("transcribe: build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe: request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("transcribe: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcribe: %s returned %d: %s", c.Endpoint, resp.StatusCode, string(data))
	}

	var out transcriptionResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("transcribe: decode response: %w", err)
	}
	return out.Text, nil
}
