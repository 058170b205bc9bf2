package livestream

import (
	"context"
	"errors"
	"fmt"

	"livecast/internal/delivery"
	"livecast/internal/logging"
	"livecast/internal/media"
	"livecast/internal/playback"
	"livecast/internal/script"
)

// CollectionBuilder produces collections. Implemented by *Builder.
type CollectionBuilder interface {
	GenerateCollection(ctx context.Context) (*Collection, error)
}

// ContentGenerator prepares a scene's artifacts and narration. Implemented
// by *media.Manager.
type ContentGenerator interface {
	GenerateSceneContent(ctx context.Context, items script.SceneItems, lang, audioName string, tts bool) (media.SceneContent, error)
}

// Controller runs the livestream timeline: scene n+1 is prepared while
// scene n plays, and the next collection is generated during the last pass
// over the current one.
type Controller struct {
	builder    CollectionBuilder
	content    ContentGenerator
	deliverer  Deliverer
	player     playback.Player
	pub        delivery.Publisher
	iterations int
}

// NewController creates a controller playing each collection iterations
// times. pub may be nil.
func NewController(builder CollectionBuilder, content ContentGenerator, deliverer Deliverer, player playback.Player, pub delivery.Publisher, iterations int) *Controller {
	if iterations < 1 {
		iterations = 1
	}
	return &Controller{
		builder:    builder,
		content:    content,
		deliverer:  deliverer,
		player:     player,
		pub:        pub,
		iterations: iterations,
	}
}

// AudioName is the narration name of the scene at index i.
func AudioName(i int) string {
	return fmt.Sprintf("scene_%d_audio", i+1)
}

type built struct {
	coll *Collection
	err  error
}

// Run generates the first collection and plays collections until ctx is
// cancelled. Only the first pass over a collection calls TTS. When the next
// collection cannot be generated the current one keeps airing, reusing the
// narration it already has.
func (c *Controller) Run(ctx context.Context) error {
	coll, err := c.builder.GenerateCollection(ctx)
	if err != nil {
		return fmt.Errorf("first collection: %w", err)
	}

	var playing playback.Handle
	voiced := false
	for {
		logging.Stream("Airing collection %s (%d scenes, %d passes)", coll.ID, len(coll.Scenes), c.iterations)
		next := coll
		for pass := 0; pass < c.iterations; pass++ {
			tts := pass == 0 && !voiced
			last := pass == c.iterations-1

			var nextCh chan built
			if last {
				nextCh = make(chan built, 1)
				go func() {
					n, err := c.builder.GenerateCollection(ctx)
					nextCh <- built{n, err}
				}()
			}

			playing, err = c.PlayCollection(ctx, coll, playing, tts)

			if nextCh != nil {
				res := <-nextCh
				switch {
				case res.err != nil && ctx.Err() == nil:
					logging.StreamError("Next collection failed, replaying %s: %v", coll.ID, res.err)
				case res.err == nil:
					next = res.coll
				}
			}
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return err
			}
		}
		voiced = next == coll
		coll = next
	}
}

// PlayCollection airs every scene of coll in order. Each scene is prepared
// while the previous narration plays, its artifacts are delivered once both
// are done, and its narration starts in the background. previous is the
// narration still playing from before, or nil. The returned handle belongs
// to the last scene started.
func (c *Controller) PlayCollection(ctx context.Context, coll *Collection, previous playback.Handle, tts bool) (playback.Handle, error) {
	prev := previous
	for i, scene := range coll.Scenes {
		audioName := AudioName(i)
		logging.StreamDebug("Preparing %s (%s) while previous narration plays", audioName, scene.Name)

		prevDone := make(chan error, 1)
		go func(h playback.Handle) {
			prevDone <- playback.Wait(ctx, h)
		}(prev)

		content, genErr := c.content.GenerateSceneContent(ctx, scene.Items, scene.Language, audioName, tts)
		prevErr := <-prevDone
		prev = nil

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if prevErr != nil {
			logging.StreamWarn("Previous narration ended with error: %v", prevErr)
		}
		if genErr != nil {
			logging.StreamError("Skipping scene %s: %v", scene.Name, genErr)
			continue
		}

		if err := c.deliverer.Deliver(ctx, content.Items.Files()...); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			logging.StreamWarn("Delivering %s artifacts failed: %v", scene.Name, err)
		}

		if c.pub != nil {
			c.pub.Publish(delivery.Event{
				Type:            delivery.EventArtifact,
				Scene:           scene.Name,
				Name:            content.Audio.Name,
				URL:             delivery.ArtifactURL(content.Audio.Name),
				DurationSeconds: content.Audio.DurationSeconds,
			})
		}
		prev = playback.Start(ctx, c.player, content.Audio)
	}
	return prev, nil
}
