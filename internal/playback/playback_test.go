package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"livecast/internal/audio"
	"livecast/internal/delivery"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu     sync.Mutex
	events []delivery.Event
}

func (r *recorder) Publish(ev delivery.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []delivery.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []delivery.EventType
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func TestTimedPlayerHoldsForDuration(t *testing.T) {
	rec := &recorder{}
	p := NewTimedPlayer(rec)
	info := audio.AudioInfo{Name: "combined_output_scene_1_audio.mp3", DurationSeconds: 0.05}

	start := time.Now()
	require.NoError(t, p.Play(context.Background(), info))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	assert.Equal(t, []delivery.EventType{delivery.EventNowPlaying, delivery.EventSceneDone}, rec.types())
	assert.Equal(t, "/artifacts/combined_output_scene_1_audio.mp3", rec.events[0].URL)
	assert.Equal(t, 0.05, rec.events[0].DurationSeconds)
}

func TestTimedPlayerCancelled(t *testing.T) {
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	h := Start(ctx, NewTimedPlayer(rec), audio.AudioInfo{Name: "long.mp3", DurationSeconds: 3600})
	cancel()

	assert.ErrorIs(t, <-h, context.Canceled)
	assert.Equal(t, []delivery.EventType{delivery.EventNowPlaying}, rec.types())
}

func TestWait(t *testing.T) {
	assert.NoError(t, Wait(context.Background(), nil))

	ch := make(chan error, 1)
	ch <- errors.New("player crashed")
	assert.EqualError(t, Wait(context.Background(), ch), "player crashed")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Wait(ctx, make(chan error)), context.Canceled)
}

func TestExecPlayer(t *testing.T) {
	rec := &recorder{}
	p, err := NewExecPlayer([]string{"true"}, rec)
	require.NoError(t, err)
	require.NoError(t, p.Play(context.Background(), audio.AudioInfo{Name: "a.mp3", Path: "/tmp/a.mp3"}))
	assert.Equal(t, []delivery.EventType{delivery.EventNowPlaying, delivery.EventSceneDone}, rec.types())

	p, err = NewExecPlayer([]string{"false"}, nil)
	require.NoError(t, err)
	assert.ErrorContains(t, p.Play(context.Background(), audio.AudioInfo{Name: "a.mp3"}), "playing a.mp3")

	_, err = NewExecPlayer(nil, nil)
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	p, err := New("", nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &TimedPlayer{}, p)

	p, err = New("exec", []string{"ffplay", "-nodisp", "-autoexit"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &ExecPlayer{}, p)

	_, err = New("vlc", nil, nil)
	assert.Error(t, err)
}
