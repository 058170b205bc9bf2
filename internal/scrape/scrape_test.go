package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"livecast/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDriver struct {
	mu    sync.Mutex
	pages map[string]string
	errs  map[string]error
	calls []string
	quits int
}

func (d *fakeDriver) Fetch(_ context.Context, url string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, url)
	if err := d.errs[url]; err != nil {
		return "", err
	}
	return d.pages[url], nil
}

func (d *fakeDriver) Quit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.quits++
	return nil
}

func newTestFetcher(t *testing.T) *Fetcher {
	t.Helper()
	cfg := config.DefaultConfig()
	f, err := NewFetcher(Config{
		SplitterPattern: cfg.Scrape.SplitterPattern,
		MaxWords:        cfg.Scrape.MaxWords,
		MinWords:        0,
		ImageSources:    cfg.Scrape.ImageSources,
	})
	require.NoError(t, err)
	return f
}

func TestHTMLToMarkdown(t *testing.T) {
	md, err := HTMLToMarkdown(`<html><head><title>Storm</title><script>var x=1</script></head>
<body><h1>Forecast</h1><p>Winds <b>120</b> mph</p><ul><li>North</li><li>West</li></ul>
<nav>menu</nav><img src="tracks_latest.png" alt="track"></body></html>`)
	require.NoError(t, err)

	assert.Contains(t, md, "# Storm")
	assert.Contains(t, md, "# Forecast")
	assert.Contains(t, md, "Winds **120 ** mph")
	assert.Contains(t, md, "- North")
	assert.Contains(t, md, "![track](tracks_latest.png)")
	assert.NotContains(t, md, "var x")
	assert.NotContains(t, md, "menu")
	assert.NotContains(t, md, "\n\n\n")
}

func TestFetch_HTMLQuitsDriver(t *testing.T) {
	f := newTestFetcher(t)
	d := &fakeDriver{pages: map[string]string{
		"https://a.example": "<h1>One</h1><p>alpha beta</p><h2>Two</h2><p>gamma</p>",
	}}

	chunks, err := f.Fetch(context.Background(), d, "https://a.example")
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
	assert.Equal(t, 1, d.quits)
}

func TestFetch_EmptyPage(t *testing.T) {
	f := newTestFetcher(t)
	d := &fakeDriver{pages: map[string]string{"https://a.example": "<html><body></body></html>"}}

	_, err := f.Fetch(context.Background(), d, "https://a.example")
	assert.ErrorIs(t, err, ErrNoContent)
	assert.Equal(t, 1, d.quits)
}

func TestFetchSlot_BackupOnSameDriver(t *testing.T) {
	f := newTestFetcher(t)
	d := &fakeDriver{
		pages: map[string]string{"https://backup.example": "<p>backup text here</p>"},
		errs:  map[string]error{"https://primary.example": errors.New("timeout")},
	}

	chunks, used, err := f.FetchSlot(context.Background(), d, config.Website{
		Primary: "https://primary.example",
		Backup:  "https://backup.example",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://backup.example", used)
	assert.Equal(t, []string{"https://primary.example", "https://backup.example"}, d.calls)
	assert.Len(t, chunks, 1)
	assert.Equal(t, 1, d.quits)
}

func TestFetchSlot_PrimaryOK(t *testing.T) {
	f := newTestFetcher(t)
	d := &fakeDriver{pages: map[string]string{"https://p.example": "<p>words</p>"}}

	_, used, err := f.FetchSlot(context.Background(), d, config.Website{Primary: "https://p.example", Backup: "https://b.example"})
	require.NoError(t, err)
	assert.Equal(t, "https://p.example", used)
	assert.Equal(t, []string{"https://p.example"}, d.calls)
}

func TestFetchSlot_NoBackupFails(t *testing.T) {
	f := newTestFetcher(t)
	d := &fakeDriver{errs: map[string]error{"https://p.example": errors.New("boom")}}

	_, _, err := f.FetchSlot(context.Background(), d, config.Website{Primary: "https://p.example"})
	assert.Error(t, err)
	assert.Equal(t, 1, d.quits)
}

func TestFetch_PDFHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer ts.Close()

	f := newTestFetcher(t)
	d := &fakeDriver{}
	_, err := f.Fetch(context.Background(), d, ts.URL+"/FW14.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Empty(t, d.calls, "PDFs never go through the browser")
}

func TestFetch_PDFGarbage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("not a pdf ", 100)))
	}))
	defer ts.Close()

	_, err := newTestFetcher(t).Fetch(context.Background(), &fakeDriver{}, ts.URL+"/doc.PDF?dl=1")
	assert.Error(t, err)
}

// buildPDF assembles a PDF from object bodies with a correct xref table,
// so only the object syntax decides whether it parses.
func buildPDF(objects ...string) []byte {
	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return []byte(b.String())
}

func TestExtractPDFText_MalformedObjects(t *testing.T) {
	cases := map[string][]string{
		"broken kids array": {
			"<< /Type /Catalog /Pages 2 0 R >>",
			"<< /Type /Pages /Kids [3 0 R) /Count 1 >>",
			"<< /Type /Page /Parent 2 0 R >>",
		},
		"broken page dict": {
			"<< /Type /Catalog /Pages 2 0 R >>",
			"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
			"<< /Type /Page /Parent 2 0 R >> >>",
		},
	}
	for name, objects := range cases {
		t.Run(name, func(t *testing.T) {
			var err error
			assert.NotPanics(t, func() {
				_, err = extractPDFText(buildPDF(objects...))
			})
			assert.Error(t, err)
		})
	}
}

func TestFetch_MalformedPDFIsASourceError(t *testing.T) {
	data := buildPDF(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R) /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R >>",
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(data)
	}))
	defer ts.Close()

	d := &fakeDriver{}
	_, used, err := newTestFetcher(t).FetchSlot(context.Background(), d, config.Website{Primary: ts.URL + "/bad.pdf"})
	require.Error(t, err)
	assert.Equal(t, ts.URL+"/bad.pdf", used)
	assert.Equal(t, 1, d.quits)
}

func TestChunk_SplitsOnHeadingsLikePages(t *testing.T) {
	f, err := NewFetcher(Config{SplitterPattern: `^#+\s`, MaxWords: 500, MinWords: 3})
	require.NoError(t, err)

	text := "# Track\nthe storm moves west today\n# Winds\ngusts reach 150 kph\n# Note\nsafe"
	chunks := f.chunk(text)
	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0], "storm moves west")
	assert.Contains(t, chunks[1], "gusts reach")
	assert.Contains(t, chunks[1], "safe", "short sections merge into the previous chunk")
}

func TestIsPDF(t *testing.T) {
	assert.True(t, isPDF("https://x/FW15.pdf"))
	assert.True(t, isPDF("https://x/a.PDF?x=1"))
	assert.False(t, isPDF("https://x/pdf/page.html"))
}

func TestImageURLs(t *testing.T) {
	f := newTestFetcher(t)
	content := `<img src="25W_geps_latest.png"> <img src="25W_tracks_latest.png">
<img src="logo.png"> <img src="25W_geps_latest.png"> sfcplot_25W_latest.png`

	assert.Equal(t, []string{
		"https://www.tropicaltidbits.com/storminfo/25W_geps_latest.png",
		"https://www.tropicaltidbits.com/storminfo/25W_tracks_latest.png",
		"https://www.tropicaltidbits.com/storminfo/sfcplots/sfcplot_25W_latest.png",
	}, f.ImageURLs(content))
}

func TestFetchImagesOffURL(t *testing.T) {
	f := newTestFetcher(t)
	d := &fakeDriver{pages: map[string]string{
		"https://storm.example": `<img src="25W_intensity_latest.png">`,
	}}
	launch := func(context.Context) (Driver, error) { return d, nil }

	urls, err := f.FetchImagesOffURL(context.Background(), launch, "https://storm.example")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.tropicaltidbits.com/storminfo/25W_intensity_latest.png"}, urls)
	assert.Equal(t, 1, d.quits)
}

func TestFetchImagesOffURL_LaunchFails(t *testing.T) {
	launch := func(context.Context) (Driver, error) { return nil, errors.New("no chrome") }
	_, err := newTestFetcher(t).FetchImagesOffURL(context.Background(), launch, "https://x")
	assert.ErrorContains(t, err, "no chrome")
}
