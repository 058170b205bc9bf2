// Package media writes the per-scene overlay artifacts: key messages, the
// current topic and the storm image archive.
package media

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"livecast/internal/audio"
	"livecast/internal/logging"
	"livecast/internal/script"
)

// Artifact file names inside the output directory.
const (
	KeyMessagesFile = "key_messages.txt"
	TopicFile       = "current_topic.txt"
	ImagesZipFile   = "images_for_stream.zip"
)

// Config holds media settings.
type Config struct {
	OutputDir string
	ImagesDir string // relative to OutputDir unless absolute
	Headers   map[string]string
	Stagger   time.Duration
	Timeout   time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		OutputDir: ".",
		ImagesDir: "images_for_stream",
		Stagger:   time.Second,
		Timeout:   300 * time.Second,
	}
}

// SavedStreamItems lists the artifacts written for one scene. Empty fields
// were skipped.
type SavedStreamItems struct {
	KeyMessages string `json:"key_messages,omitempty"`
	Topic       string `json:"topic,omitempty"`
	ImagesZip   string `json:"images_zip,omitempty"`
}

// Files returns the non-empty artifact paths.
func (s SavedStreamItems) Files() []string {
	var out []string
	for _, f := range []string{s.KeyMessages, s.Topic, s.ImagesZip} {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// SceneContent is everything prepared for one scene before it airs.
type SceneContent struct {
	Items SavedStreamItems `json:"items"`
	Audio audio.AudioInfo  `json:"audio"`
}

// Synthesizer produces scene narration.
type Synthesizer interface {
	Generate(ctx context.Context, items script.SceneItems, lang, name string, tts bool) (audio.AudioInfo, error)
}

// Manager saves stream items to disk.
type Manager struct {
	cfg    Config
	client *http.Client
	synth  Synthesizer
}

// NewManager creates a manager. synth may be nil when only items are saved.
func NewManager(cfg Config, synth Synthesizer) *Manager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Manager{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		synth:  synth,
	}
}

// ImagesDir returns the resolved image download directory.
func (m *Manager) ImagesDir() string {
	if filepath.IsAbs(m.cfg.ImagesDir) {
		return m.cfg.ImagesDir
	}
	return filepath.Join(m.cfg.OutputDir, m.cfg.ImagesDir)
}

// SaveStreamItems writes the key messages and topic files and, when
// items carries image URLs, the image archive. The writes run concurrently.
func (m *Manager) SaveStreamItems(ctx context.Context, items script.SceneItems) (SavedStreamItems, error) {
	timer := logging.StartTimer(logging.CategoryMedia, "SaveStreamItems")
	defer timer.Stop()

	if err := os.MkdirAll(m.cfg.OutputDir, 0755); err != nil {
		return SavedStreamItems{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	var saved SavedStreamItems
	eg, egctx := errgroup.WithContext(ctx)
	if items.KeyMessages != "" {
		eg.Go(func() error {
			p, err := m.writeText(KeyMessagesFile, items.KeyMessages)
			saved.KeyMessages = p
			return err
		})
	}
	if items.Topic != "" {
		eg.Go(func() error {
			p, err := m.writeText(TopicFile, items.Topic)
			saved.Topic = p
			return err
		})
	}
	if len(items.ImageURLs) > 0 {
		eg.Go(func() error {
			p, err := m.SaveImages(egctx, items.ImageURLs)
			saved.ImagesZip = p
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return SavedStreamItems{}, err
	}
	return saved, nil
}

func (m *Manager) writeText(name, content string) (string, error) {
	p := filepath.Join(m.cfg.OutputDir, name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	logging.MediaDebug("Wrote %s (%d bytes)", name, len(content))
	return p, nil
}

// SaveImages clears the image directory, downloads urls into it and zips the
// result. Downloads start one stagger apart; failed images are skipped.
func (m *Manager) SaveImages(ctx context.Context, urls []string) (string, error) {
	timer := logging.StartTimer(logging.CategoryMedia, "SaveImages")
	defer timer.StopWithInfo()

	dir := m.ImagesDir()
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("failed to clear image directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create image directory: %w", err)
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		saved int
	)
launch:
	for i, u := range urls {
		if i > 0 && m.cfg.Stagger > 0 {
			select {
			case <-ctx.Done():
				break launch
			case <-time.After(m.cfg.Stagger):
			}
		}
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			if err := m.download(ctx, u, dir, i); err != nil {
				logging.MediaWarn("Skipping image %s: %v", u, err)
				return
			}
			mu.Lock()
			saved++
			mu.Unlock()
		}(i, u)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return "", err
	}

	zipPath := filepath.Join(m.cfg.OutputDir, ImagesZipFile)
	if err := zipDir(dir, zipPath); err != nil {
		return "", err
	}
	logging.Media("Saved %d/%d images to %s", saved, len(urls), ImagesZipFile)
	return zipPath, nil
}

// download saves rawURL as image_<i>_<base>, so equal base names from
// different URLs never overwrite each other.
func (m *Manager) download(ctx context.Context, rawURL, dir string, i int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	for k, v := range m.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	name := path.Base(req.URL.Path)
	if name == "" || name == "/" || name == "." {
		return fmt.Errorf("no file name in url")
	}
	f, err := os.Create(filepath.Join(dir, fmt.Sprintf("image_%d_%s", i, name)))
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// zipDir archives the regular files of dir (not recursive) into dst.
func zipDir(dir, dst string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read image directory: %w", err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	zw := zip.NewWriter(out)
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := addFile(zw, filepath.Join(dir, e.Name()), e.Name()); err != nil {
			zw.Close()
			out.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return out.Close()
}

func addFile(zw *zip.Writer, src, name string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}

// GenerateSceneContent saves the stream items and synthesizes the narration
// concurrently.
func (m *Manager) GenerateSceneContent(ctx context.Context, items script.SceneItems, lang, audioName string, tts bool) (SceneContent, error) {
	if m.synth == nil {
		return SceneContent{}, fmt.Errorf("no synthesizer configured")
	}

	var content SceneContent
	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		saved, err := m.SaveStreamItems(egctx, items)
		content.Items = saved
		return err
	})
	eg.Go(func() error {
		info, err := m.synth.Generate(egctx, items, lang, audioName, tts)
		content.Audio = info
		return err
	})
	if err := eg.Wait(); err != nil {
		return SceneContent{}, fmt.Errorf("scene content %s: %w", audioName, err)
	}
	return content, nil
}
