// Package audio turns a scene script into a single narrated mp3.
package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"livecast/internal/llm"
	"livecast/internal/logging"
	"livecast/internal/prompts"
	"livecast/internal/script"
	"livecast/internal/textproc"
)

// AudioInfo describes a finished narration.
type AudioInfo struct {
	Name            string  `json:"name"`
	Path            string  `json:"path"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Duration returns the narration length.
func (a AudioInfo) Duration() time.Duration {
	return time.Duration(a.DurationSeconds * float64(time.Second))
}

// Config holds synthesizer settings.
type Config struct {
	OutputDir    string
	LeadIn       time.Duration
	MaxSeconds   float64 // 0 means no cap
	DefaultVoice string
	Voices       map[string]string // language -> voice
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		OutputDir:    ".",
		LeadIn:       5 * time.Second,
		DefaultVoice: "shimmer",
		Voices:       map[string]string{"aus": "fable"},
	}
}

// Synthesizer voices scripts with TTS and assembles the parts.
type Synthesizer struct {
	speaker llm.Speaker
	mixer   Mixer
	cfg     Config
}

// NewSynthesizer creates a synthesizer.
func NewSynthesizer(speaker llm.Speaker, mixer Mixer, cfg Config) *Synthesizer {
	if cfg.DefaultVoice == "" {
		cfg.DefaultVoice = "shimmer"
	}
	return &Synthesizer{speaker: speaker, mixer: mixer, cfg: cfg}
}

// File names for one narration.
func part1File(name string) string    { return fmt.Sprintf("output_part1_%s.mp3", name) }
func part2File(name string) string    { return fmt.Sprintf("output_part2_%s.mp3", name) }
func leadInFile(name string) string   { return fmt.Sprintf("empty_audio_%s.mp3", name) }
func combinedFile(name string) string { return fmt.Sprintf("combined_output_%s.mp3", name) }

// Generate voices items.Script in two halves, prepends the lead-in silence and
// joins everything into combined_output_<name>.mp3.
// With tts false the part files from an earlier pass are reused; a part that
// does not exist yet is voiced anyway.
func (s *Synthesizer) Generate(ctx context.Context, items script.SceneItems, lang, name string, tts bool) (AudioInfo, error) {
	timer := logging.StartTimer(logging.CategoryAudio, "Generate")
	defer timer.StopWithInfo()

	if items.Script == "" {
		return AudioInfo{}, fmt.Errorf("scene %s has no script", name)
	}
	if err := os.MkdirAll(s.cfg.OutputDir, 0755); err != nil {
		return AudioInfo{}, fmt.Errorf("failed to create audio directory: %w", err)
	}

	voice := prompts.VoiceFor(lang, s.cfg.Voices, s.cfg.DefaultVoice)
	first, second := textproc.SplitHalves(items.Script)

	part1 := filepath.Join(s.cfg.OutputDir, part1File(name))
	part2 := filepath.Join(s.cfg.OutputDir, part2File(name))
	leadIn := filepath.Join(s.cfg.OutputDir, leadInFile(name))
	combined := filepath.Join(s.cfg.OutputDir, combinedFile(name))

	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return s.voice(egctx, first, voice, part1, tts) })
	eg.Go(func() error { return s.voice(egctx, second, voice, part2, tts) })
	eg.Go(func() error { return s.mixer.Silence(egctx, s.cfg.LeadIn, leadIn) })
	if err := eg.Wait(); err != nil {
		return AudioInfo{}, err
	}

	if err := s.mixer.Concat(ctx, []string{leadIn, part1, part2}, combined, s.cfg.MaxSeconds); err != nil {
		return AudioInfo{}, err
	}
	secs, err := s.mixer.Duration(ctx, combined)
	if err != nil {
		return AudioInfo{}, err
	}

	logging.Audio("Narration %s ready: %.1fs (voice=%s, tts=%v)", combinedFile(name), secs, voice, tts)
	return AudioInfo{Name: combinedFile(name), Path: combined, DurationSeconds: secs}, nil
}

func (s *Synthesizer) voice(ctx context.Context, text, voice, path string, tts bool) error {
	if !tts {
		if _, err := os.Stat(path); err == nil {
			logging.AudioDebug("Reusing %s, skipping TTS call", filepath.Base(path))
			return nil
		}
		logging.Get(logging.CategoryAudio).Warn("%s missing, calling TTS despite replay", filepath.Base(path))
	}
	return s.speaker.Speak(ctx, text, voice, path)
}
