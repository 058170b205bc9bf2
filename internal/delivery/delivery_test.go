package delivery

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/livestream"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	resp.Body.Close()
	return conn
}

func TestHubBroadcastsEvents(t *testing.T) {
	hub := NewHub(t.TempDir())
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	a := dialHub(t, srv)
	defer a.Close()
	b := dialHub(t, srv)
	defer b.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(Event{Type: EventNowPlaying, Scene: "scene_1_audio", DurationSeconds: 61.5})

	for _, conn := range []*websocket.Conn{a, b} {
		var ev Event
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		require.NoError(t, conn.ReadJSON(&ev))
		assert.Equal(t, EventNowPlaying, ev.Type)
		assert.Equal(t, "scene_1_audio", ev.Scene)
		assert.Equal(t, 61.5, ev.DurationSeconds)
		assert.False(t, ev.At.IsZero())
	}
}

func TestHubForgetsDisconnectedClients(t *testing.T) {
	hub := NewHub(t.TempDir())
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dialHub(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(Event{Type: EventSceneDone})
}

func TestHubServesArtifacts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "current_topic.txt"), []byte("Typhoon update"), 0644))

	hub := NewHub(dir)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + ArtifactURL("/anywhere/current_topic.txt"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Typhoon update", string(body))
}

func TestHubDropsOldestForSlowClient(t *testing.T) {
	hub := NewHub(t.TempDir())
	c := &client{send: make(chan []byte, 2)}
	hub.clients[c] = struct{}{}

	hub.Publish(Event{Type: EventArtifact, Name: "one"})
	hub.Publish(Event{Type: EventArtifact, Name: "two"})
	hub.Publish(Event{Type: EventArtifact, Name: "three"})

	first := string(<-c.send)
	second := string(<-c.send)
	assert.Contains(t, first, `"name":"two"`)
	assert.Contains(t, second, `"name":"three"`)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func TestDeliverPublishesArtifacts(t *testing.T) {
	rec := &recorder{}
	d := NewDeliverer(rec, Jitter{})

	require.NoError(t, d.Deliver(context.Background(), "/out/key_messages.txt", "", "/out/images_for_stream.zip"))
	require.Len(t, rec.events, 2)
	assert.Equal(t, EventArtifact, rec.events[0].Type)
	assert.Equal(t, "key_messages.txt", rec.events[0].Name)
	assert.Equal(t, "/artifacts/key_messages.txt", rec.events[0].URL)
	assert.Equal(t, "images_for_stream.zip", rec.events[1].Name)
}

func TestDeliverJitter(t *testing.T) {
	d := NewDeliverer(&recorder{}, DefaultJitter())
	var delays []time.Duration
	d.sleep = func(ctx context.Context, dur time.Duration) error {
		delays = append(delays, dur)
		return nil
	}

	files := make([]string, 50)
	for i := range files {
		files[i] = "f.txt"
	}
	require.NoError(t, d.Deliver(context.Background(), files...))
	require.Len(t, delays, 50)

	for i, dur := range delays {
		assert.GreaterOrEqual(t, dur, time.Second)
		assert.LessOrEqual(t, dur, 10*time.Second)
		if i > 0 {
			diff := dur - delays[i-1]
			if diff < 0 {
				diff = -diff
			}
			assert.Greater(t, diff, 4*time.Second, "delay %d too close to previous", i)
		}
	}
}

func TestDeliverNarrowRangeIgnoresGap(t *testing.T) {
	d := NewDeliverer(&recorder{}, Jitter{Min: 1, Max: 3, Gap: 4})
	for i := 0; i < 20; i++ {
		delay := d.nextDelay()
		assert.GreaterOrEqual(t, delay, time.Second)
		assert.LessOrEqual(t, delay, 3*time.Second)
	}
}

func TestDeliverCancelled(t *testing.T) {
	rec := &recorder{}
	d := NewDeliverer(rec, DefaultJitter())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Deliver(ctx, "a.txt")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.events)
}

func TestTopicWatcherRecordsChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "current_topic.txt")
	require.NoError(t, os.WriteFile(path, []byte("Typhoon Pepito\n"), 0644))

	tw, err := NewTopicWatcher(path)
	require.NoError(t, err)
	require.NoError(t, tw.Start(context.Background()))

	require.NoError(t, os.WriteFile(path, []byte("Manila forecast"), 0644))
	require.Eventually(t, func() bool { return len(tw.History()) == 2 }, 3*time.Second, 20*time.Millisecond)

	// Rewriting the same topic is not a change.
	require.NoError(t, os.WriteFile(path, []byte("Manila forecast"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "key_messages.txt"), []byte("ignored"), 0644))
	require.NoError(t, os.WriteFile(path, []byte("Cebu forecast"), 0644))
	require.Eventually(t, func() bool { return len(tw.History()) == 3 }, 3*time.Second, 20*time.Millisecond)

	assert.Equal(t, []string{"Typhoon Pepito", "Manila forecast", "Cebu forecast"}, tw.Stop())
}

func TestTopicWatcherStopWithoutStart(t *testing.T) {
	tw, err := NewTopicWatcher(filepath.Join(t.TempDir(), "current_topic.txt"))
	require.NoError(t, err)
	assert.Empty(t, tw.Stop())
}
