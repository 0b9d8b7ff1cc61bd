package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// FetchError reports that the upstream feed could not be retrieved or
// decoded. Nothing has been committed when it is returned.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetcher retrieves the remote feed document over HTTP. One attempt per
// invocation; no retry, no caching.
type Fetcher struct {
	client    *http.Client
	sourceURL string
}

// NewFetcher creates a fetcher for a fixed source URL. The timeout bounds
// the whole request including body read.
func NewFetcher(sourceURL string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		sourceURL: sourceURL,
	}
}

// SourceURL returns the fixed source URL this fetcher reads from.
func (f *Fetcher) SourceURL() string {
	return f.sourceURL
}

// Fetch retrieves and parses the feed document. Network failures, non-2xx
// responses, and malformed JSON all surface as *FetchError.
func (f *Fetcher) Fetch(ctx context.Context) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.sourceURL, nil)
	if err != nil {
		return nil, &FetchError{URL: f.sourceURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: f.sourceURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{URL: f.sourceURL, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, &FetchError{URL: f.sourceURL, Err: fmt.Errorf("decode body: %w", err)}
	}

	return &doc, nil
}
