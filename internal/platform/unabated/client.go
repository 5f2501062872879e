// Package unabated implements the REST client for the Unabated partner odds
// API: a full-snapshot bootstrap plus cursor-driven incremental change polls.
package unabated

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/voltrade/voltbot/internal/domain"
)

// resultFailed is the API's in-band signal that a changes cursor has expired
// server-side. The only recovery is a fresh bootstrap.
const resultFailed = "Failed"

// Client is the REST client for the Unabated partner API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ domain.Feed = (*Client)(nil)

// NewClient creates a new feed client.
//
// baseURL is the API root, e.g. "https://partner-api.unabated.com/api".
// The API key is sent as the apiKey query parameter on every request.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Bootstrap fetches the full market snapshot and the initial changes cursor.
func (c *Client) Bootstrap(ctx context.Context) (domain.Snapshot, error) {
	body, err := c.get(ctx, "/markets/gameOdds")
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("unabated: bootstrap: %w", err)
	}

	var resp snapshotResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Snapshot{}, fmt.Errorf("unabated: bootstrap: decode: %w: %w", domain.ErrMalformedData, err)
	}
	if resp.LastTimestamp == "" {
		return domain.Snapshot{}, fmt.Errorf("unabated: bootstrap: missing lastTimestamp: %w", domain.ErrMalformedData)
	}

	updates, dropped := decodeEvents(resp.GameOddsEvents)

	return domain.Snapshot{
		Cursor:  domain.Cursor(resp.LastTimestamp),
		Teams:   convertTeams(resp.Teams),
		Sources: convertSources(resp.MarketSources),
		Updates: updates,
		Dropped: dropped,
	}, nil
}

// PollChanges fetches every change batch recorded after cursor. A rejected
// cursor surfaces as ErrStaleCursor; the caller must re-bootstrap rather than
// retry the same cursor.
func (c *Client) PollChanges(ctx context.Context, cursor domain.Cursor) (domain.ChangeSet, error) {
	path := "/markets/changes/" + url.PathEscape(string(cursor))
	body, err := c.get(ctx, path)
	if err != nil {
		return domain.ChangeSet{}, fmt.Errorf("unabated: poll changes: %w", err)
	}

	var resp changesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.ChangeSet{}, fmt.Errorf("unabated: poll changes: decode: %w: %w", domain.ErrMalformedData, err)
	}
	if resp.ResultCode == resultFailed {
		return domain.ChangeSet{}, fmt.Errorf("unabated: poll changes: cursor rejected: %w", domain.ErrStaleCursor)
	}
	if resp.LastTimestamp == "" {
		return domain.ChangeSet{}, fmt.Errorf("unabated: poll changes: missing lastTimestamp: %w", domain.ErrMalformedData)
	}

	batches := make([]domain.ChangeBatch, 0, len(resp.Results))
	for _, result := range resp.Results {
		updates, dropped := decodeEvents(result.GameOddsEvents)
		if len(updates) == 0 && dropped == 0 {
			continue
		}
		batches = append(batches, domain.ChangeBatch{Updates: updates, Dropped: dropped})
	}

	return domain.ChangeSet{
		Cursor:  domain.Cursor(resp.LastTimestamp),
		Batches: batches,
	}, nil
}

// get performs an authenticated GET and classifies transport-level failures
// into the error taxonomy.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("build url: %w", err)
	}
	q := u.Query()
	q.Set("apiKey", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w: %w", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w: %w", domain.ErrTransient, err)
	}

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}
	return body, nil
}

// classifyStatus maps HTTP status codes onto the error taxonomy. Auth
// failures are fatal; everything else non-2xx is retryable.
func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("HTTP %d: %w", code, domain.ErrAuth)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("HTTP %d: rate limited: %w", code, domain.ErrTransient)
	default:
		return fmt.Errorf("HTTP %d: %w", code, domain.ErrTransient)
	}
}
