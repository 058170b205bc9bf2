package llm

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"livecast/internal/logging"
)

// OpenAISpeech implements Speaker with the OpenAI /audio/speech endpoint.
type OpenAISpeech struct {
	poster
	model string
}

// NewOpenAISpeech creates a TTS client.
func NewOpenAISpeech(cfg Config) *OpenAISpeech {
	if cfg.SpeechModel == "" {
		cfg.SpeechModel = "tts-1-hd"
	}
	return &OpenAISpeech{poster: newPoster(cfg), model: cfg.SpeechModel}
}

// Speak synthesizes text as mp3 and streams it to path. A partial file is
// removed on failure.
func (s *OpenAISpeech) Speak(ctx context.Context, text, voice, path string) error {
	timer := logging.StartTimer(logging.CategoryLLM, "Speak")
	defer timer.Stop()

	resp, err := s.post(ctx, "/audio/speech", speechRequest{
		Model:          s.model,
		Voice:          voice,
		Input:          text,
		ResponseFormat: "mp3",
	})
	if err != nil {
		return fmt.Errorf("speech request for %s: %w", filepath.Base(path), err)
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create audio directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	n, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(path)
		if copyErr != nil {
			return fmt.Errorf("failed to stream audio to %s: %w", path, copyErr)
		}
		return fmt.Errorf("failed to close %s: %w", path, closeErr)
	}

	logging.LLM("Audio saved to %s (%d bytes, voice=%s)", path, n, voice)
	return nil
}
