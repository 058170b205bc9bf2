// Package playback airs finished scene narrations.
package playback

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"livecast/internal/audio"
	"livecast/internal/delivery"
	"livecast/internal/logging"
)

// Player plays one narration and blocks until it ends.
type Player interface {
	Play(ctx context.Context, info audio.AudioInfo) error
}

// Handle reports the outcome of a narration playing in the background.
type Handle <-chan error

// Start plays info on a new goroutine. The returned handle yields exactly
// one value when playback ends.
func Start(ctx context.Context, p Player, info audio.AudioInfo) Handle {
	ch := make(chan error, 1)
	go func() {
		ch <- p.Play(ctx, info)
	}()
	return ch
}

// Wait blocks until h finishes. A nil handle returns immediately.
func Wait(ctx context.Context, h Handle) error {
	if h == nil {
		return nil
	}
	select {
	case err := <-h:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func publish(pub delivery.Publisher, t delivery.EventType, info audio.AudioInfo) {
	if pub == nil {
		return
	}
	pub.Publish(delivery.Event{
		Type:            t,
		Name:            info.Name,
		URL:             delivery.ArtifactURL(info.Name),
		DurationSeconds: info.DurationSeconds,
	})
}

// TimedPlayer hands the audio to the overlay and holds the timeline for its
// duration. The overlay does the actual playing.
type TimedPlayer struct {
	pub delivery.Publisher
}

// NewTimedPlayer creates a timed player publishing to pub.
func NewTimedPlayer(pub delivery.Publisher) *TimedPlayer {
	return &TimedPlayer{pub: pub}
}

// Play publishes now_playing, waits the narration length and publishes
// scene_done.
func (p *TimedPlayer) Play(ctx context.Context, info audio.AudioInfo) error {
	publish(p.pub, delivery.EventNowPlaying, info)
	logging.Playback("Playing %s (%.1fs)", info.Name, info.DurationSeconds)

	t := time.NewTimer(info.Duration())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}

	publish(p.pub, delivery.EventSceneDone, info)
	return nil
}

// ExecPlayer plays audio through an external command, e.g.
// ffplay -nodisp -autoexit. The file path is appended to Command.
type ExecPlayer struct {
	Command []string
	pub     delivery.Publisher
}

// NewExecPlayer creates an exec player.
func NewExecPlayer(command []string, pub delivery.Publisher) (*ExecPlayer, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("exec playback needs a command")
	}
	return &ExecPlayer{Command: command, pub: pub}, nil
}

// Play runs the command on info.Path and waits for it to exit.
func (p *ExecPlayer) Play(ctx context.Context, info audio.AudioInfo) error {
	args := append(append([]string(nil), p.Command[1:]...), info.Path)
	cmd := exec.CommandContext(ctx, p.Command[0], args...)

	publish(p.pub, delivery.EventNowPlaying, info)
	logging.Playback("Playing %s with %s", info.Name, p.Command[0])
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.PlaybackWarn("%s exited: %v: %s", p.Command[0], err, tail(out, 256))
		return fmt.Errorf("playing %s: %w", info.Name, err)
	}
	publish(p.pub, delivery.EventSceneDone, info)
	return nil
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}

// New builds the player for mode "timed" or "exec".
func New(mode string, command []string, pub delivery.Publisher) (Player, error) {
	switch mode {
	case "", "timed":
		return NewTimedPlayer(pub), nil
	case "exec":
		return NewExecPlayer(command, pub)
	default:
		return nil, fmt.Errorf("unknown playback mode %q", mode)
	}
}
