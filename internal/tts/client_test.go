package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxlift/sheetvox/internal/retry"
)

func TestSynthesizeSuccess(t *testing.T) {
	audio := bytes.Repeat([]byte("mp3!"), 512)

	var gotPath, gotKey string
	var gotReq synthesizeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write(audio)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "key-123", VoiceID: "voice-1"})
	got, err := c.Synthesize(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	if !bytes.Equal(got, audio) {
		t.Errorf("audio mismatch: got %d bytes, want %d", len(got), len(audio))
	}
	if gotPath != "/v1/text-to-speech/voice-1" {
		t.Errorf("request path = %q", gotPath)
	}
	if gotKey != "key-123" {
		t.Errorf("xi-api-key = %q", gotKey)
	}
	if gotReq.Text != "Hello" || gotReq.ModelID != DefaultModelID {
		t.Errorf("request payload = %+v", gotReq)
	}
}

func TestSynthesizeRateLimitIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	_, err := c.Synthesize(context.Background(), "Hello")
	if err == nil {
		t.Fatal("Synthesize should fail on 429")
	}

	var se *retry.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("error = %v, want StatusError 429", err)
	}
	if retry.IsPermanent(retry.Classify(err)) {
		t.Error("429 should classify transient")
	}
}

func TestSynthesizeBadRequestIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid voice settings", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	_, err := c.Synthesize(context.Background(), "Hello")
	if err == nil {
		t.Fatal("Synthesize should fail on 400")
	}
	if !retry.IsPermanent(retry.Classify(err)) {
		t.Errorf("400 should classify permanent, got %v", err)
	}
}

func TestSynthesizeTinyBodyIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>oops</html>"))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	_, err := c.Synthesize(context.Background(), "Hello")
	if !errors.Is(err, ErrAudioTooSmall) {
		t.Fatalf("error = %v, want ErrAudioTooSmall", err)
	}
	if !retry.IsPermanent(err) {
		t.Error("undersized audio should be permanent")
	}
}

func TestSynthesizeEmptyText(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://localhost:0"})
	_, err := c.Synthesize(context.Background(), "")
	if !errors.Is(err, ErrEmptyText) {
		t.Fatalf("error = %v, want ErrEmptyText", err)
	}
	if !retry.IsPermanent(err) {
		t.Error("empty text should be permanent")
	}
}
