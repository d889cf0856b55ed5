// Package pocketbase is a minimal admin client for the PocketBase records
// API: password auth plus per-collection list/create/update/delete. It
// covers exactly the surface the migration pipeline needs and nothing
// else.
package pocketbase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultTimeout bounds a single HTTP call so a wedged store can't
	// hang the pipeline forever.
	DefaultTimeout = 30 * time.Second

	// DefaultPerPage is the list page size. PocketBase caps perPage at 500.
	DefaultPerPage = 500

	// maxRetryElapsed bounds the retry budget for one logical request.
	maxRetryElapsed = 20 * time.Second
)

// Record is one store record as returned by the API.
type Record map[string]any

// ID returns the store-assigned record identifier.
func (r Record) ID() string {
	return r.GetString("id")
}

// GetString returns the named field as a string, or "" when absent or not
// a string.
func (r Record) GetString(field string) string {
	s, _ := r[field].(string)
	return s
}

// ListOptions narrow a list query.
type ListOptions struct {
	// Fields is a comma-separated projection (e.g. "id,legacy_id").
	Fields string

	// Filter is a PocketBase filter expression.
	Filter string
}

// Client talks to one PocketBase instance. Authenticate must succeed
// before any record operation; the admin token is then attached to every
// request.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	token string
}

// NewClient creates a client for the given base URL (scheme://host:port,
// no trailing /api).
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// statusError is an API error response that should not be retried.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("API error: %s (status %d)", e.body, e.status)
}

// request sends one API call, retrying transport failures, 429s and 5xx
// responses with exponential backoff. Other non-2xx statuses fail
// immediately: a 400 on one record create is that record's problem, not a
// transient store condition.
func (c *Client) request(ctx context.Context, method, path string, body any) ([]byte, error) {
	var jsonBody []byte
	if body != nil {
		var err error
		jsonBody, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
	}

	var respBody []byte
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxRetryElapsed

	err := backoff.Retry(func() error {
		var bodyReader io.Reader
		if jsonBody != nil {
			bodyReader = bytes.NewReader(jsonBody)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", c.token)
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return &statusError{status: resp.StatusCode, body: string(data)}
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return backoff.Permanent(&statusError{status: resp.StatusCode, body: string(data)})
		}

		respBody = data
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return nil, err
	}

	return respBody, nil
}

// Health checks that the store is reachable.
func (c *Client) Health(ctx context.Context) error {
	if _, err := c.request(ctx, http.MethodGet, "/api/health", nil); err != nil {
		return fmt.Errorf("store unreachable at %s: %w", c.BaseURL, err)
	}
	return nil
}

// Authenticate performs superuser password auth and stores the token for
// subsequent requests.
func (c *Client) Authenticate(ctx context.Context, email, password string) error {
	payload := map[string]string{
		"identity": email,
		"password": password,
	}

	resp, err := c.request(ctx, http.MethodPost, "/api/collections/_superusers/auth-with-password", payload)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	var auth struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp, &auth); err != nil {
		return fmt.Errorf("parsing auth response: %w", err)
	}
	if auth.Token == "" {
		return fmt.Errorf("authentication failed: no token in response")
	}

	c.token = auth.Token
	return nil
}

// FullList fetches every record of a collection, paging until a short
// page. Records come back in the store's default retrieval order.
func (c *Client) FullList(ctx context.Context, collection string, opts ListOptions) ([]Record, error) {
	base := "/api/collections/" + url.PathEscape(collection) + "/records"

	var all []Record
	page := 1
	for {
		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		params.Set("perPage", strconv.Itoa(DefaultPerPage))
		params.Set("skipTotal", "1")
		if opts.Fields != "" {
			params.Set("fields", opts.Fields)
		}
		if opts.Filter != "" {
			params.Set("filter", opts.Filter)
		}

		resp, err := c.request(ctx, http.MethodGet, base+"?"+params.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", collection, err)
		}

		var result struct {
			Items []Record `json:"items"`
		}
		if err := json.Unmarshal(resp, &result); err != nil {
			return nil, fmt.Errorf("parsing %s list page: %w", collection, err)
		}

		all = append(all, result.Items...)
		if len(result.Items) < DefaultPerPage {
			break
		}
		page++
	}

	return all, nil
}

// Create inserts a record and returns it with its store-assigned ID.
func (c *Client) Create(ctx context.Context, collection string, fields map[string]any) (Record, error) {
	resp, err := c.request(ctx, http.MethodPost, "/api/collections/"+url.PathEscape(collection)+"/records", fields)
	if err != nil {
		return nil, fmt.Errorf("creating %s record: %w", collection, err)
	}

	var created Record
	if err := json.Unmarshal(resp, &created); err != nil {
		return nil, fmt.Errorf("parsing created record: %w", err)
	}
	return created, nil
}

// Update applies a partial update: only the given fields change.
func (c *Client) Update(ctx context.Context, collection, id string, fields map[string]any) (Record, error) {
	path := "/api/collections/" + url.PathEscape(collection) + "/records/" + url.PathEscape(id)
	resp, err := c.request(ctx, http.MethodPatch, path, fields)
	if err != nil {
		return nil, fmt.Errorf("updating %s/%s: %w", collection, id, err)
	}

	var updated Record
	if err := json.Unmarshal(resp, &updated); err != nil {
		return nil, fmt.Errorf("parsing updated record: %w", err)
	}
	return updated, nil
}

// Delete removes a record.
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	path := "/api/collections/" + url.PathEscape(collection) + "/records/" + url.PathEscape(id)
	if _, err := c.request(ctx, http.MethodDelete, path, nil); err != nil {
		return fmt.Errorf("deleting %s/%s: %w", collection, id, err)
	}
	return nil
}
