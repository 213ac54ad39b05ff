// Package sheetqueue is a Go client for the sheetqueue HTTP API.
package sheetqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client.
const DefaultHTTPTimeout = 15 * time.Second

// ErrNoRows is returned by NextRow when every row is done.
var ErrNoRows = errors.New("sheetqueue: no rows left")

// Row is a table row keyed by column name.
type Row map[string]any

// MarkDoneResult is the server response to a successful completion.
type MarkDoneResult struct {
	Status    string `json:"status"`
	UpdatedID any    `json:"updated_id"`
}

// Stats reports how many rows are done and pending.
type Stats struct {
	Total   int `json:"total"`
	Done    int `json:"done"`
	Pending int `json:"pending"`
}

// APIError represents a non-2xx response.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("sheetqueue api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("sheetqueue api error (%d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server, for example an
// unknown Id passed to MarkDone.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client wraps the HTTP interactions with a sheetqueue server.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	idColumn   string
}

// Option configures a Client.
type Option func(*Client)

// WithIDColumn sets the column Drain reads row identifiers from.
func WithIDColumn(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.idColumn = name
		}
	}
}

// NewClient instantiates a client. When httpClient is nil, a default client
// with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	c := &Client{baseURL: parsed, httpClient: httpClient, idColumn: "Id"}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Ping checks that the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/", nil, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// NextRow returns the first row that is not done, or ErrNoRows.
func (c *Client) NextRow(ctx context.Context, table string) (Row, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/next-row", pathQuery(table), nil)
	if err != nil {
		return nil, err
	}
	var row Row
	if err := c.do(req, &row); err != nil {
		return nil, err
	}
	if msg, ok := row["message"].(string); ok && len(row) == 1 && msg == "No rows left" {
		return nil, ErrNoRows
	}
	return row, nil
}

// MarkDone marks the row with the given id as done. The id is sent with its
// JSON type preserved; numbers and their string forms match the same row.
func (c *Client) MarkDone(ctx context.Context, table string, id any) (MarkDoneResult, error) {
	body, err := json.Marshal(map[string]any{"path": table, "id": id})
	if err != nil {
		return MarkDoneResult{}, fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/mark-done", nil, bytes.NewReader(body))
	if err != nil {
		return MarkDoneResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	var res MarkDoneResult
	if err := c.do(req, &res); err != nil {
		return MarkDoneResult{}, err
	}
	return res, nil
}

// Stats returns done and pending counts for the table.
func (c *Client) Stats(ctx context.Context, table string) (Stats, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/stats", pathQuery(table), nil)
	if err != nil {
		return Stats{}, err
	}
	var stats Stats
	if err := c.do(req, &stats); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// GetFile streams the raw bytes of a server-side file into w and returns the
// content type reported by the server.
func (c *Client) GetFile(ctx context.Context, file string, w io.Writer) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/get-file", pathQuery(file), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", decodeError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return resp.Header.Get("Content-Type"), nil
}

func pathQuery(p string) url.Values {
	return url.Values{"path": []string{p}}
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	if query != nil {
		rel.RawQuery = query.Encode()
	}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read error response: %w", err)
	}
	if len(data) > 0 {
		_ = json.Unmarshal(data, apiErr)
	}
	if apiErr.Message == "" {
		apiErr.Message = string(bytes.TrimSpace(data))
	}
	return apiErr
}
