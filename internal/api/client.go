package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a thin HTTP client for the target mutation API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the given base URL (e.g. http://host:port).
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Targets fetches the registered target list.
func (c *Client) Targets(ctx context.Context) (TargetsResponse, error) {
	var resp TargetsResponse
	err := c.doJSON(ctx, http.MethodGet, "/targets", nil, &resp)
	return resp, err
}

// Add registers a new target.
func (c *Client) Add(ctx context.Context, address string) (MutationResponse, error) {
	var resp MutationResponse
	err := c.doJSON(ctx, http.MethodPost, "/targets", TargetRequest{Address: address}, &resp)
	return resp, err
}

// Remove deletes a target.
func (c *Client) Remove(ctx context.Context, address string) (MutationResponse, error) {
	var resp MutationResponse
	err := c.doJSON(ctx, http.MethodDelete, "/targets/"+url.PathEscape(address), nil, &resp)
	return resp, err
}

// Rename replaces a target's address with a new one.
func (c *Client) Rename(ctx context.Context, oldAddress, newAddress string) (MutationResponse, error) {
	var resp MutationResponse
	err := c.doJSON(ctx, http.MethodPut, "/targets/"+url.PathEscape(oldAddress), TargetRequest{Address: newAddress}, &resp)
	return resp, err
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		raw, _ := io.ReadAll(res.Body)
		msg := strings.TrimSpace(string(raw))
		if msg != "" {
			return fmt.Errorf("request failed: %s: %s", res.Status, msg)
		}
		return fmt.Errorf("request failed: %s", res.Status)
	}

	if out == nil {
		return nil
	}

	decoder := json.NewDecoder(res.Body)
	return decoder.Decode(out)
}
