package livestream

import (
	"context"
	"sync"

	"livecast/internal/browser"
	"livecast/internal/config"
	"livecast/internal/logging"
	"livecast/internal/scrape"
)

// ScrapeResult is the outcome of scraping one website or slot.
type ScrapeResult struct {
	Website string // URL the chunks came from
	Chunks  []string
	Err     error
}

// Scraper turns websites into chunks and finds storm images.
type Scraper interface {
	// ScrapeSites scrapes every site once and returns results in site order.
	ScrapeSites(ctx context.Context, sites []config.Website) []ScrapeResult
	// StormImages returns the storm image URLs found on url.
	StormImages(ctx context.Context, url string) ([]string, error)
}

// BrowserScraper scrapes with one headless Chrome driver per site.
type BrowserScraper struct {
	launcher *browser.Launcher
	fetcher  *scrape.Fetcher
}

// NewBrowserScraper creates a scraper.
func NewBrowserScraper(launcher *browser.Launcher, fetcher *scrape.Fetcher) *BrowserScraper {
	return &BrowserScraper{launcher: launcher, fetcher: fetcher}
}

// ScrapeSites launches a driver per site, then fetches all sites
// concurrently. When the drivers cannot be started every site fails.
func (s *BrowserScraper) ScrapeSites(ctx context.Context, sites []config.Website) []ScrapeResult {
	results := make([]ScrapeResult, len(sites))
	if len(sites) == 0 {
		return results
	}

	drivers, err := s.launcher.CreateDrivers(ctx, len(sites))
	if err != nil {
		logging.Get(logging.CategoryBrowser).Error("Could not start %d drivers: %v", len(sites), err)
		for i, site := range sites {
			results[i] = ScrapeResult{Website: site.Primary, Err: err}
		}
		return results
	}

	var wg sync.WaitGroup
	for i, site := range sites {
		wg.Add(1)
		go func(i int, site config.Website) {
			defer wg.Done()
			chunks, used, err := s.fetcher.FetchSlot(ctx, drivers[i], site)
			results[i] = ScrapeResult{Website: used, Chunks: chunks, Err: err}
		}(i, site)
	}
	wg.Wait()
	return results
}

// StormImages renders url with a fresh driver and extracts image URLs.
func (s *BrowserScraper) StormImages(ctx context.Context, url string) ([]string, error) {
	return s.fetcher.FetchImagesOffURL(ctx, s.launch, url)
}

func (s *BrowserScraper) launch(ctx context.Context) (scrape.Driver, error) {
	d, err := s.launcher.Launch(ctx)
	if err != nil {
		return nil, err
	}
	return d, nil
}
