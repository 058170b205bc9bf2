package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livecast/internal/script"
)

type fakeSpeaker struct {
	mu     sync.Mutex
	spoken map[string]string // file name -> text
	voices []string
	err    error
}

func (f *fakeSpeaker) Speak(ctx context.Context, text, voice, path string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.spoken == nil {
		f.spoken = make(map[string]string)
	}
	f.spoken[filepath.Base(path)] = text
	f.voices = append(f.voices, voice)
	return os.WriteFile(path, []byte(text), 0644)
}

type fakeMixer struct {
	silence  time.Duration
	inputs   []string
	out      string
	max      float64
	duration float64
}

func (m *fakeMixer) Silence(ctx context.Context, d time.Duration, path string) error {
	m.silence = d
	return os.WriteFile(path, nil, 0644)
}

func (m *fakeMixer) Concat(ctx context.Context, inputs []string, out string, maxSeconds float64) error {
	m.inputs, m.out, m.max = inputs, out, maxSeconds
	return os.WriteFile(out, nil, 0644)
}

func (m *fakeMixer) Duration(ctx context.Context, path string) (float64, error) {
	return m.duration, nil
}

func newTestSynth(t *testing.T) (*Synthesizer, *fakeSpeaker, *fakeMixer, string) {
	t.Helper()
	dir := t.TempDir()
	speaker := &fakeSpeaker{}
	mixer := &fakeMixer{duration: 62.5}
	cfg := DefaultConfig()
	cfg.OutputDir = dir
	cfg.MaxSeconds = 60
	return NewSynthesizer(speaker, mixer, cfg), speaker, mixer, dir
}

func TestGenerateSplitsAndCombines(t *testing.T) {
	s, speaker, mixer, dir := newTestSynth(t)

	info, err := s.Generate(context.Background(), script.SceneItems{Script: "Hello Manila"}, "ph", "scene_1_audio", true)
	require.NoError(t, err)

	assert.Equal(t, AudioInfo{
		Name:            "combined_output_scene_1_audio.mp3",
		Path:            filepath.Join(dir, "combined_output_scene_1_audio.mp3"),
		DurationSeconds: 62.5,
	}, info)
	assert.Equal(t, 62500*time.Millisecond, info.Duration())

	if diff := cmp.Diff(map[string]string{
		"output_part1_scene_1_audio.mp3": "Hello ",
		"output_part2_scene_1_audio.mp3": "Manila",
	}, speaker.spoken); diff != "" {
		t.Errorf("spoken parts mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"shimmer", "shimmer"}, speaker.voices)

	assert.Equal(t, 5*time.Second, mixer.silence)
	assert.Equal(t, []string{
		filepath.Join(dir, "empty_audio_scene_1_audio.mp3"),
		filepath.Join(dir, "output_part1_scene_1_audio.mp3"),
		filepath.Join(dir, "output_part2_scene_1_audio.mp3"),
	}, mixer.inputs)
	assert.Equal(t, float64(60), mixer.max)
}

func TestGenerateUsesLanguageVoice(t *testing.T) {
	s, speaker, _, _ := newTestSynth(t)
	_, err := s.Generate(context.Background(), script.SceneItems{Script: "G'day"}, "aus", "a", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"fable", "fable"}, speaker.voices)
}

func TestGenerateReusesPartsWhenTTSDisabled(t *testing.T) {
	s, speaker, _, _ := newTestSynth(t)
	ctx := context.Background()
	items := script.SceneItems{Script: "first pass script"}

	_, err := s.Generate(ctx, items, "en", "replay", true)
	require.NoError(t, err)
	require.Len(t, speaker.spoken, 2)

	speaker.spoken = nil
	_, err = s.Generate(ctx, items, "en", "replay", false)
	require.NoError(t, err)
	assert.Empty(t, speaker.spoken, "replay must not call TTS")
}

func TestGenerateVoicesMissingPartsOnReplay(t *testing.T) {
	s, speaker, _, _ := newTestSynth(t)

	_, err := s.Generate(context.Background(), script.SceneItems{Script: "never voiced"}, "en", "fresh", false)
	require.NoError(t, err)

	names := make([]string, 0, len(speaker.spoken))
	for n := range speaker.spoken {
		names = append(names, n)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"output_part1_fresh.mp3", "output_part2_fresh.mp3"}, names)
}

func TestGenerateErrors(t *testing.T) {
	s, speaker, _, _ := newTestSynth(t)

	_, err := s.Generate(context.Background(), script.SceneItems{}, "en", "empty", true)
	assert.Error(t, err)

	speaker.err = errors.New("tts quota")
	_, err = s.Generate(context.Background(), script.SceneItems{Script: "x y"}, "en", "fail", true)
	assert.ErrorContains(t, err, "tts quota")
}

type call struct {
	bin  string
	args []string
}

func fakeRun(calls *[]call, out string, err error) runFunc {
	return func(ctx context.Context, bin string, args ...string) ([]byte, error) {
		*calls = append(*calls, call{bin, args})
		return []byte(out), err
	}
}

func TestFFmpegMixerCommands(t *testing.T) {
	var calls []call
	m := NewFFmpegMixer("", "")
	m.run = fakeRun(&calls, "61.250000\n", nil)
	ctx := context.Background()

	require.NoError(t, m.Silence(ctx, 5*time.Second, "lead.mp3"))
	require.NoError(t, m.Concat(ctx, []string{"lead.mp3", "p1.mp3", "p2.mp3"}, "out.mp3", 60))
	secs, err := m.Duration(ctx, "out.mp3")
	require.NoError(t, err)
	assert.Equal(t, 61.25, secs)

	want := []call{
		{"ffmpeg", []string{"-y", "-loglevel", "error", "-f", "lavfi", "-i", "anullsrc=r=24000:cl=mono",
			"-t", "5.000", "-c:a", "libmp3lame", "-q:a", "9", "lead.mp3"}},
		{"ffmpeg", []string{"-y", "-loglevel", "error", "-i", "lead.mp3", "-i", "p1.mp3", "-i", "p2.mp3",
			"-filter_complex", "[0:a][1:a][2:a]concat=n=3:v=0:a=1[out]", "-map", "[out]",
			"-t", "60.000", "-c:a", "libmp3lame", "-q:a", "2", "out.mp3"}},
		{"ffprobe", []string{"-v", "error", "-show_entries", "format=duration",
			"-of", "default=noprint_wrappers=1:nokey=1", "out.mp3"}},
	}
	if diff := cmp.Diff(want, calls, cmp.AllowUnexported(call{})); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestFFmpegMixerConcatWithoutCap(t *testing.T) {
	var calls []call
	m := NewFFmpegMixer("/opt/ffmpeg", "/opt/ffprobe")
	m.run = fakeRun(&calls, "", nil)

	require.NoError(t, m.Concat(context.Background(), []string{"a.mp3"}, "out.mp3", 0))
	require.Len(t, calls, 1)
	assert.Equal(t, "/opt/ffmpeg", calls[0].bin)
	assert.NotContains(t, calls[0].args, "-t")

	assert.Error(t, m.Concat(context.Background(), nil, "out.mp3", 0))
}

func TestFFmpegMixerErrors(t *testing.T) {
	var calls []call
	m := NewFFmpegMixer("", "")
	m.run = fakeRun(&calls, "N/A", nil)
	_, err := m.Duration(context.Background(), "x.mp3")
	assert.ErrorContains(t, err, "parsing duration")

	m.run = fakeRun(&calls, "", errors.New("exit status 1"))
	assert.ErrorContains(t, m.Silence(context.Background(), time.Second, "x.mp3"), "rendering silence")
}
