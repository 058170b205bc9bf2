package scrape

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"livecast/internal/logging"
	"livecast/internal/textproc"
)

var pngNamePattern = regexp.MustCompile(`\b\w+\.png\b`)

// ImageURLs finds .png file names in content and resolves each against the
// first image source whose keyword it contains. Names without a keyword are
// skipped. The result keeps first-seen order without duplicates.
func (f *Fetcher) ImageURLs(content string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, name := range pngNamePattern.FindAllString(content, -1) {
		for _, src := range f.cfg.ImageSources {
			if !strings.Contains(name, src.Keyword) {
				continue
			}
			u := src.BaseURL + name
			if !seen[u] {
				seen[u] = true
				out = append(out, u)
			}
			break
		}
	}
	return out
}

// FetchImagesOffURL renders url with a fresh driver and returns the storm
// image URLs found on it.
func (f *Fetcher) FetchImagesOffURL(ctx context.Context, launch LaunchFunc, url string) ([]string, error) {
	d, err := launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("launch driver: %w", err)
	}
	defer func() { _ = d.Quit() }()

	html, err := d.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	urls := f.ImageURLs(textproc.FilterContent(html))
	logging.Scrape("found %d images on %s", len(urls), url)
	return urls, nil
}
