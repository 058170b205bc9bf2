package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(url string) Config {
	cfg := DefaultConfig("test-key")
	cfg.BaseURL = url
	cfg.Timeout = 5 * time.Second
	cfg.RetryDelay = time.Millisecond
	return cfg
}

func TestCompleteWithSystem_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o", body.Model)
		if !assert.Len(t, body.Messages, 2) {
			return
		}
		assert.Equal(t, chatMessage{Role: "system", Content: "be a reporter"}, body.Messages[0])
		assert.Equal(t, chatMessage{Role: "user", Content: "the storm"}, body.Messages[1])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"  Good evening.\n"}}]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(testConfig(server.URL))
	got, err := client.CompleteWithSystem(context.Background(), "be a reporter", "the storm")
	require.NoError(t, err)
	assert.Equal(t, "Good evening.", got)
}

func TestCompleteWithSystem_RetriesRateLimitAndServerErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch attempts.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
		}
	}))
	defer server.Close()

	got, err := NewOpenAIClient(testConfig(server.URL)).CompleteWithSystem(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestCompleteWithSystem_GivesUpAfterMaxRetries(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewOpenAIClient(testConfig(server.URL)).CompleteWithSystem(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, int32(3), attempts.Load())
}

func TestCompleteWithSystem_ClientErrorIsNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad"}}`))
	}))
	defer server.Close()

	_, err := NewOpenAIClient(testConfig(server.URL)).CompleteWithSystem(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), attempts.Load())
}

func TestCompleteWithSystem_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	_, err := NewOpenAIClient(testConfig(server.URL)).CompleteWithSystem(context.Background(), "s", "u")
	assert.ErrorContains(t, err, "no completion returned")
}

func TestCompleteWithSystem_NoAPIKey(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:0")
	cfg.APIKey = ""
	_, err := NewOpenAIClient(cfg).CompleteWithSystem(context.Background(), "s", "u")
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestCompleteWithSystem_ContextCancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.RetryDelay = time.Hour
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewOpenAIClient(cfg).CompleteWithSystem(ctx, "s", "u")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSpeak_StreamsToFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/speech", r.URL.Path)
		var body speechRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tts-1-hd", body.Model)
		assert.Equal(t, "fable", body.Voice)
		assert.Equal(t, "G'day", body.Input)
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3fake-mp3"))
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "out", "output_part1_scene.mp3")
	err := NewOpenAISpeech(testConfig(server.URL)).Speak(context.Background(), "G'day", "fable", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ID3fake-mp3", string(data))
}

func TestSpeak_FailureLeavesNoFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "out.mp3")
	err := NewOpenAISpeech(testConfig(server.URL)).Speak(context.Background(), "text", "shimmer", path)
	require.Error(t, err)
	assert.NoFileExists(t, path)
}
