package scrape

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"livecast/internal/logging"

	"github.com/ledongthuc/pdf"
)

const downloadChunkSize = 64 * 1024

// maxPDFBytes caps a single PDF download.
const maxPDFBytes = 64 << 20

func isPDF(url string) bool {
	u := strings.ToLower(url)
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return strings.HasSuffix(u, ".pdf")
}

// fetchPDFText downloads a PDF and returns its text, one page per line group.
func (f *Fetcher) fetchPDFText(ctx context.Context, url string) (string, error) {
	if err := f.pdfSem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer f.pdfSem.Release(1)

	timer := logging.StartTimer(logging.CategoryScrape, "PDF "+url)
	defer timer.Stop()

	ctx, cancel := context.WithTimeout(ctx, f.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch PDF: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	var buf bytes.Buffer
	chunk := make([]byte, downloadChunkSize)
	body := io.LimitReader(resp.Body, maxPDFBytes)
	for {
		n, err := body.Read(chunk)
		buf.Write(chunk[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read PDF: %w", err)
		}
		logging.ScrapeDebug("downloaded %d bytes of %s", buf.Len(), url)
	}

	return extractPDFText(buf.Bytes())
}

// extractPDFText returns the plain text of every readable page. The pdf
// lexer panics on malformed objects, so those surface as errors.
func extractPDFText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			logging.ScrapeWarn("page %d: %v", i, err)
			continue
		}
		pages = append(pages, pageText)
	}
	return strings.Join(pages, "\n"), nil
}
