// Package tts synthesizes speech audio through the ElevenLabs HTTP API.
package tts

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voxlift/sheetvox/internal/retry"
)

const (
	// DefaultVoiceID is the stock voice used when none is configured.
	DefaultVoiceID = "EXAVITQu4vr4xnSDxMaL"

	// DefaultModelID selects the synthesis model.
	DefaultModelID = "eleven_monolingual_v1"

	// minAudioBytes rejects bodies too small to be real audio. The API
	// returns short HTML/JSON error pages on some failure paths.
	minAudioBytes = 1000
)

var (
	// ErrEmptyText indicates the input text was empty.
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrAudioTooSmall indicates the response body was not usable audio.
	ErrAudioTooSmall = errors.New("synthesized audio payload too small")
)

// Synthesizer converts text into audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Config configures the ElevenLabs client.
type Config struct {
	BaseURL string // default https://api.elevenlabs.io
	APIKey  string
	VoiceID string
	ModelID string
	Timeout time.Duration
}

// Client is an HTTP Synthesizer backed by the ElevenLabs API.
type Client struct {
	cfg    Config
	client *http.Client
}

// NewClient creates a new ElevenLabs client. HTTP/1.1 is forced; the
// upstream intermittently drops HTTP/2 streams with framing errors.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.elevenlabs.io"
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = DefaultVoiceID
	}
	if cfg.ModelID == "" {
		cfg.ModelID = DefaultModelID
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}

	return &Client{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				ForceAttemptHTTP2: false,
				TLSNextProto:      map[string]func(string, *tls.Conn) http.RoundTripper{},
			},
		},
	}
}

// synthesizeRequest is the API request payload.
type synthesizeRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// Synthesize posts text to the voice endpoint and returns the audio bytes.
// HTTP failures carry their status code so the retry policy can classify
// them; undersized bodies are permanent.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, retry.Permanent(ErrEmptyText)
	}

	body, err := json.Marshal(synthesizeRequest{Text: text, ModelID: c.cfg.ModelID})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", c.cfg.BaseURL, c.cfg.VoiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &retry.StatusError{StatusCode: resp.StatusCode, Message: string(detail)}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio body: %w", err)
	}

	if len(audio) < minAudioBytes {
		return nil, retry.Permanent(fmt.Errorf("%w: %d bytes", ErrAudioTooSmall, len(audio)))
	}

	return audio, nil
}
