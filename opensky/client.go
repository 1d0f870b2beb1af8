package opensky

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultURL is the public all-states endpoint.
const DefaultURL = "https://opensky-network.org/api/states/all"

// maxBodyBytes bounds how much of a response is read.
const maxBodyBytes = 64 << 20

// ErrNetwork matches every fetch failure.
var ErrNetwork = errors.New("telemetry fetch failed")

// NetworkError describes why a snapshot could not be retrieved.
type NetworkError struct {
	URL    string
	Status int // zero when no response was received
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// Snapshot is one response of the all-states endpoint. States are kept raw so
// each record can be decoded, and rejected, on its own.
type Snapshot struct {
	Time   int64
	States []json.RawMessage
}

// Client fetches state vector snapshots. It never retries.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient creates a client for url with a bounded request timeout.
func NewClient(url string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Fetch performs one GET and returns the decoded snapshot. A non-200 status,
// transport failure, timeout, unreadable body or absent states list yields a
// *NetworkError.
func (c *Client) Fetch(ctx context.Context) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Snapshot{}, &NetworkError{URL: c.url, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Snapshot{}, &NetworkError{URL: c.url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Snapshot{}, &NetworkError{URL: c.url, Status: resp.StatusCode, Err: errors.New("unexpected status")}
	}

	var body struct {
		Time   int64              `json:"time"`
		States *[]json.RawMessage `json:"states"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return Snapshot{}, &NetworkError{URL: c.url, Status: resp.StatusCode, Err: fmt.Errorf("decode body: %w", err)}
	}
	if body.States == nil {
		return Snapshot{}, &NetworkError{URL: c.url, Status: resp.StatusCode, Err: errors.New("response has no states list")}
	}

	return Snapshot{Time: body.Time, States: *body.States}, nil
}
