package definition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultURL is the Jisho word search endpoint.
const DefaultURL = "https://jisho.org/api/v1/search/words"

// Placeholders returned instead of an error.
const (
	NotFound        = "No definition found"
	ConnectionError = "Connection error"
)

const maxBodySize = 1 << 20

var (
	errNoEntry     = errors.New("definition: no entry")
	errUnavailable = errors.New("definition: upstream unavailable")
)

// Client looks words up in a Jisho-compatible API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for baseURL whose requests give up after timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// jishoResponse is the subset of the search payload we read.
type jishoResponse struct {
	Data []struct {
		Slug   string `json:"slug"`
		Senses []struct {
			EnglishDefinitions []string `json:"english_definitions"`
		} `json:"senses"`
	} `json:"data"`
}

// Lookup returns a short English gloss for word. It never fails: a missing
// entry yields NotFound and any upstream failure, including an error status
// or an unreadable reply, yields ConnectionError.
func (c *Client) Lookup(ctx context.Context, word string) string {
	gloss, err := c.lookup(ctx, word)
	switch {
	case err == nil:
		return gloss
	case errors.Is(err, errUnavailable):
		slog.Warn("definition lookup failed", "word", word, "error", err)
		return ConnectionError
	default:
		slog.Debug("no definition", "word", word, "error", err)
		return NotFound
	}
}

func (c *Client) lookup(ctx context.Context, word string) (string, error) {
	word = strings.TrimSpace(word)
	if word == "" {
		return "", errNoEntry
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("%w: bad base url: %v", errUnavailable, err)
	}
	q := u.Query()
	q.Set("keyword", word)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "yomu")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %s", errUnavailable, resp.Status)
	}

	var body jishoResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decode: %v", errUnavailable, err)
	}
	if len(body.Data) == 0 || len(body.Data[0].Senses) == 0 {
		return "", errNoEntry
	}

	defs := body.Data[0].Senses[0].EnglishDefinitions
	if len(defs) == 0 {
		return "", errNoEntry
	}
	return strings.Join(defs, ", "), nil
}
