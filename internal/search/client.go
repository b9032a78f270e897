package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Request is the wire format of a similarity query.
type Request struct {
	Vectors    [][]float32   `json:"vectors"`
	Collection CollectionRef `json:"collection"`
	Limit      int           `json:"limit,omitempty"`
}

// Response is the wire format of a similarity answer.
type Response struct {
	Data []Result `json:"data"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Client is a Searcher backed by a remote search server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the search server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Collections fetches the collection names in registration order.
func (c *Client) Collections(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/collections", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.asError(resp)
	}
	var names []string
	if err := json.NewDecoder(resp.Body).Decode(&names); err != nil {
		return nil, fmt.Errorf("failed to decode collection list: %w", err)
	}
	return names, nil
}

// Search runs a top-k query against the remote server. Unlike the
// in-process Service, a limit <= 0 does not return the full ranking:
// the server substitutes its configured default limit.
func (c *Client) Search(ctx context.Context, ref CollectionRef, query []float32, limit int) ([]Result, error) {
	body, err := json.Marshal(Request{
		Vectors:    [][]float32{query},
		Collection: ref,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.asError(resp)
	}
	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return out.Data, nil
}

// asError maps HTTP status codes back onto the package's sentinel errors
// so remote and in-process searches fail the same way.
func (c *Client) asError(resp *http.Response) error {
	msg := resp.Status
	var e errorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		msg = e.Error
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrUnknownCollection, msg)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrDimensionMismatch, msg)
	default:
		return fmt.Errorf("search server error: %s", msg)
	}
}
