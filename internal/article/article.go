// Package article turns web pages into reading texts.
package article

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"

	"github.com/conorfennell/yomu/internal/domain"
)

const (
	// DefaultTimeout bounds a whole page download.
	DefaultTimeout = 30 * time.Second
	// MaxBodySize caps the HTML read from untrusted URLs.
	MaxBodySize = 10 * 1024 * 1024

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

var (
	// ErrTooLarge is returned for pages over MaxBodySize.
	ErrTooLarge = errors.New("article: response body too large")
	// ErrEmpty is returned when readability finds no text.
	ErrEmpty    = errors.New("article: no readable content")

	// (?s) lets dot match newlines, (?i) ignores tag case.
	reRT = regexp.MustCompile(`(?si)<rt\b[^>]*>.*?</rt>`)
	reRP = regexp.MustCompile(`(?si)<rp\b[^>]*>.*?</rp>`)
)

// SanitizeRuby removes furigana (<rt>) and ruby parentheses (<rp>) so the
// extracted text does not read "漢字かんじ".
func SanitizeRuby(content []byte) []byte {
	cleaned := reRT.ReplaceAll(content, []byte{})
	return reRP.ReplaceAll(cleaned, []byte{})
}

// Fetcher downloads web pages and extracts their main article.
type Fetcher struct {
	http    *http.Client
	maxBody int64
}

// NewFetcher returns a Fetcher whose downloads give up after timeout, or
// after DefaultTimeout when timeout is not positive.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		http:    &http.Client{Timeout: timeout},
		maxBody: MaxBodySize,
	}
}

// Fetch downloads rawURL and extracts its main article as an unsaved Text.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (domain.Text, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil || (pageURL.Scheme != "http" && pageURL.Scheme != "https") {
		return domain.Text{}, fmt.Errorf("invalid article URL %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return domain.Text{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ja,en-US;q=0.9,en;q=0.8")

	resp, err := f.http.Do(req)
	if err != nil {
		return domain.Text{}, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Text{}, fmt.Errorf("fetching %s: unexpected status %d", rawURL, resp.StatusCode)
	}
	if resp.ContentLength > f.maxBody {
		return domain.Text{}, ErrTooLarge
	}

	// One byte past the limit tells a truncated body from one of exactly maxBody.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return domain.Text{}, fmt.Errorf("failed to read %s: %w", rawURL, err)
	}
	if int64(len(body)) > f.maxBody {
		return domain.Text{}, ErrTooLarge
	}

	return Extract(body, pageURL)
}

// Extract runs readability over an HTML document.
func Extract(html []byte, pageURL *url.URL) (domain.Text, error) {
	parsed, err := readability.FromReader(bytes.NewReader(SanitizeRuby(html)), pageURL)
	if err != nil {
		return domain.Text{}, fmt.Errorf("failed to extract article: %w", err)
	}

	content := strings.TrimSpace(parsed.TextContent)
	if content == "" {
		return domain.Text{}, ErrEmpty
	}
	title := strings.TrimSpace(parsed.Title)
	if title == "" && pageURL != nil {
		title = pageURL.Host + pageURL.Path
	}

	slog.Info("Article extracted", "title", title, "site", parsed.SiteName, "chars", len([]rune(content)))
	return domain.Text{Title: title, Content: content}, nil
}
