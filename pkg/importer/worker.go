package importer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/devraulu/airank/pkg/process"
)

type result struct {
	url  string
	err  error
	page *process.PageContent
}

func (im *Importer) worker(ctx context.Context, id int, jobs <-chan string, results chan<- result) {
	slog.Debug("worker started", slog.Int("id", id))
	for u := range jobs {
		results <- im.fetch(ctx, u)
	}
}

// fetch downloads u and extracts its content. Non-HTML responses yield a
// result without a page.
func (im *Importer) fetch(ctx context.Context, u string) result {
	res := result{url: u}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		res.err = err
		return res
	}
	req.Header.Add("Accept", "text/html")
	req.Header.Add("User-Agent", im.cfg.UserAgent)

	resp, err := im.client.Do(req)
	if err != nil {
		res.err = err
		return res
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		res.err = fmt.Errorf("unexpected status %d", resp.StatusCode)
		return res
	}

	if !validateHTMLContentTypeHeader(resp, "text/html") {
		return res
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		res.err = err
		return res
	}

	if !validateBodyContentType(body, "text/html") {
		return res
	}

	page, err := process.ExtractPage(bytes.NewReader(body), u)
	if err != nil {
		res.err = err
		return res
	}
	res.page = page
	return res
}

func validateHTMLContentTypeHeader(resp *http.Response, contentType string) bool {
	return strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), contentType)
}

func validateBodyContentType(body []byte, contentType string) bool {
	return strings.HasPrefix(http.DetectContentType(body), contentType)
}
