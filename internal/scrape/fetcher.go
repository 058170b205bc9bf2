// Package scrape turns source URLs into embedding-sized text chunks and
// finds storm images on a page.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"livecast/internal/config"
	"livecast/internal/logging"
	"livecast/internal/textproc"

	"golang.org/x/sync/semaphore"
)

// ErrNoContent is returned when a page produced no chunks.
var ErrNoContent = errors.New("page yielded no content")

// maxConcurrentPDFs bounds parallel PDF downloads.
const maxConcurrentPDFs = 4

// Driver fetches rendered page HTML. Implemented by *browser.Driver.
type Driver interface {
	Fetch(ctx context.Context, url string) (string, error)
	Quit() error
}

// LaunchFunc starts a fresh driver.
type LaunchFunc func(ctx context.Context) (Driver, error)

// Config configures a Fetcher.
type Config struct {
	SplitterPattern string
	MaxWords        int
	MinWords        int
	FetchTimeout    time.Duration
	ImageSources    []config.ImageSource
}

// Fetcher scrapes pages into chunks.
type Fetcher struct {
	cfg        Config
	splitter   *regexp.Regexp
	httpClient *http.Client
	pdfSem     *semaphore.Weighted
}

// NewFetcher creates a fetcher.
func NewFetcher(cfg Config) (*Fetcher, error) {
	splitter, err := textproc.CompileSplitter(cfg.SplitterPattern)
	if err != nil {
		return nil, err
	}
	if cfg.MaxWords <= 0 {
		cfg.MaxWords = 500
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 300 * time.Second
	}
	return &Fetcher{
		cfg:        cfg,
		splitter:   splitter,
		httpClient: &http.Client{},
		pdfSem:     semaphore.NewWeighted(maxConcurrentPDFs),
	}, nil
}

// Fetch scrapes url into chunks and quits d. PDFs are downloaded over HTTP;
// everything else is rendered by d.
func (f *Fetcher) Fetch(ctx context.Context, d Driver, url string) ([]string, error) {
	defer func() { _ = d.Quit() }()
	return f.fetch(ctx, d, url)
}

// FetchSlot scrapes a slot's primary URL and falls back to its backup, on
// the same driver, when the primary fails or is empty. It returns the chunks
// and the URL they came from. d is quit afterwards.
func (f *Fetcher) FetchSlot(ctx context.Context, d Driver, slot config.Website) ([]string, string, error) {
	defer func() { _ = d.Quit() }()

	chunks, err := f.fetch(ctx, d, slot.Primary)
	if err == nil {
		return chunks, slot.Primary, nil
	}
	if slot.Backup == "" || ctx.Err() != nil {
		return nil, slot.Primary, err
	}

	logging.ScrapeWarn("primary %s failed (%v), trying backup %s", slot.Primary, err, slot.Backup)
	chunks, backupErr := f.fetch(ctx, d, slot.Backup)
	if backupErr != nil {
		return nil, slot.Backup, fmt.Errorf("primary: %v; backup: %w", err, backupErr)
	}
	return chunks, slot.Backup, nil
}

func (f *Fetcher) fetch(ctx context.Context, d Driver, url string) ([]string, error) {
	var chunks []string
	if isPDF(url) {
		text, err := f.fetchPDFText(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("pdf %s: %w", url, err)
		}
		chunks = f.chunk(text)
	} else {
		md, err := f.fetchMarkdown(ctx, d, url)
		if err != nil {
			return nil, err
		}
		chunks = f.chunk(md)
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("%s: %w", url, ErrNoContent)
	}
	logging.Scrape("%s -> %d chunks", url, len(chunks))
	return chunks, nil
}

// chunk sizes PDF text and page markdown the same way.
func (f *Fetcher) chunk(doc string) []string {
	return textproc.SplitMarkdownChunks(doc, f.splitter, f.cfg.MaxWords, f.cfg.MinWords)
}

func (f *Fetcher) fetchMarkdown(ctx context.Context, d Driver, url string) (string, error) {
	if d == nil {
		return "", fmt.Errorf("%s: no driver", url)
	}
	html, err := d.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	md, err := HTMLToMarkdown(textproc.FilterContent(html))
	if err != nil {
		return "", fmt.Errorf("convert %s: %w", url, err)
	}
	return md, nil
}
