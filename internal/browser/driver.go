// Package browser launches tagged headless Chrome instances for scraping and
// cleans up the ones a run leaves behind.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"livecast/internal/logging"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// TagPrefix prefixes every session tag so cleanup can find our processes.
const TagPrefix = "chrome_session_"

// ErrDriverClosed is returned when a quit driver is used.
var ErrDriverClosed = errors.New("browser driver closed")

// Config holds browser launch configuration.
type Config struct {
	Bin                string
	Headless           bool
	PageLoadTimeout    time.Duration
	SettleDelay        time.Duration
	StartupConcurrency int
	LaunchRetries      int
	RetryDelay         time.Duration
	UserDataRoot       string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:           true,
		PageLoadTimeout:    30 * time.Second,
		SettleDelay:        2 * time.Second,
		StartupConcurrency: 2,
		LaunchRetries:      10,
		RetryDelay:         time.Second,
		UserDataRoot:       "/tmp",
	}
}

// Driver is one tagged Chrome instance.
type Driver struct {
	Tag string

	cfg      Config
	launcher *launcher.Launcher
	browser  *rod.Browser

	mu     sync.Mutex
	closed bool
}

// Launcher starts drivers, bounding how many Chrome processes boot at once.
type Launcher struct {
	cfg Config
	sem *semaphore.Weighted
}

// NewLauncher creates a launcher.
func NewLauncher(cfg Config) *Launcher {
	n := cfg.StartupConcurrency
	if n <= 0 {
		n = 1
	}
	if cfg.LaunchRetries <= 0 {
		cfg.LaunchRetries = 1
	}
	if cfg.UserDataRoot == "" {
		cfg.UserDataRoot = "/tmp"
	}
	return &Launcher{cfg: cfg, sem: semaphore.NewWeighted(int64(n))}
}

// Launch starts one driver, retrying up to LaunchRetries times.
func (l *Launcher) Launch(ctx context.Context) (*Driver, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer l.sem.Release(1)

	timer := logging.StartTimer(logging.CategoryBrowser, "Launch")
	defer timer.Stop()

	var lastErr error
	for attempt := 1; attempt <= l.cfg.LaunchRetries; attempt++ {
		d, err := l.launchOnce(ctx)
		if err == nil {
			logging.BrowserDebug("driver %s ready (attempt %d)", d.Tag, attempt)
			return d, nil
		}
		lastErr = err
		logging.BrowserWarn("launch attempt %d/%d failed: %v", attempt, l.cfg.LaunchRetries, err)

		if attempt == l.cfg.LaunchRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.cfg.RetryDelay):
		}
	}
	return nil, fmt.Errorf("launch chrome after %d attempts: %w", l.cfg.LaunchRetries, lastErr)
}

func (l *Launcher) launchOnce(ctx context.Context) (*Driver, error) {
	tag := TagPrefix + uuid.NewString()

	launch := launcher.New().
		Context(ctx).
		Headless(l.cfg.Headless).
		UserDataDir(filepath.Join(l.cfg.UserDataRoot, tag)).
		NoSandbox(true).
		Set(flags.Flag("disable-dev-shm-usage")).
		Set(flags.Flag("blink-settings"), "imagesEnabled=false").
		Leakless(true)
	if l.cfg.Bin != "" {
		launch = launch.Bin(l.cfg.Bin)
	}

	controlURL, err := launch.Launch()
	if err != nil {
		launch.Kill()
		launch.Cleanup()
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		launch.Kill()
		launch.Cleanup()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	return &Driver{Tag: tag, cfg: l.cfg, launcher: launch, browser: b}, nil
}

// CreateDrivers launches n drivers concurrently. If any launch fails the
// drivers already started are quit.
func (l *Launcher) CreateDrivers(ctx context.Context, n int) ([]*Driver, error) {
	drivers := make([]*Driver, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			d, err := l.Launch(gctx)
			if err != nil {
				return err
			}
			drivers[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, d := range drivers {
			if d != nil {
				_ = d.Quit()
			}
		}
		return nil, err
	}
	logging.Browser("created %d drivers", n)
	return drivers, nil
}

// Fetch navigates to url, waits for load plus the settle delay and returns
// the page HTML. The driver stays open.
func (d *Driver) Fetch(ctx context.Context, url string) (string, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return "", ErrDriverClosed
	}
	b := d.browser
	d.mu.Unlock()

	page, err := b.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}
	defer func() { _ = page.Close() }()

	timed := page.Timeout(d.cfg.PageLoadTimeout)
	if err := timed.Navigate(url); err != nil {
		return "", fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := timed.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait load %s: %w", url, err)
	}
	timed.CancelTimeout()

	if d.cfg.SettleDelay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(d.cfg.SettleDelay):
		}
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("read html %s: %w", url, err)
	}
	logging.BrowserDebug("%s fetched %s (%d bytes)", d.Tag, url, len(html))
	return html, nil
}

// FetchHTML fetches url and quits the driver.
func (d *Driver) FetchHTML(ctx context.Context, url string) (string, error) {
	defer func() { _ = d.Quit() }()
	return d.Fetch(ctx, url)
}

// Quit closes the browser, kills its process and removes its profile.
// Calling Quit more than once is a no-op.
func (d *Driver) Quit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	var err error
	if d.browser != nil {
		err = d.browser.Close()
	}
	if d.launcher != nil {
		d.launcher.Kill()
		d.launcher.Cleanup()
	}
	logging.BrowserDebug("driver %s quit", d.Tag)
	return err
}

// Closed reports whether the driver has been quit.
func (d *Driver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// LookPath locates the Chrome binary: bin when set, otherwise a system
// install found the way rod's launcher does.
func LookPath(bin string) (string, bool) {
	if bin != "" {
		p, err := exec.LookPath(bin)
		return p, err == nil
	}
	return launcher.LookPath()
}
