// Package remote talks to the configuration store service over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dashboard/api/internal/dashboard"
	"github.com/rs/zerolog"
)

// ErrStaleRevision reports that the store already holds a newer document.
// The engine treats it like any other failed save.
var ErrStaleRevision = errors.New("remote: stale revision")

const defaultTimeout = 10 * time.Second

type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.http = httpClient
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.http.Timeout = timeout
		}
	}
}

func New(baseURL string, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load fetches the stored document without interpreting it.
func (c *Client) Load(ctx context.Context, sessionID string) (json.RawMessage, bool, error) {
	resp, err := c.do(ctx, http.MethodGet, c.configURL(sessionID), nil)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, responseError(resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read config: %w", err)
	}
	return body, true, nil
}

func (c *Client) Save(ctx context.Context, sessionID string, doc dashboard.Document) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return c.put(ctx, c.configURL(sessionID), payload)
}

func (c *Client) SaveActiveTab(ctx context.Context, sessionID, tabID string, revision int64) error {
	payload, err := json.Marshal(map[string]any{
		"activeTabId": tabID,
		"revision":    revision,
	})
	if err != nil {
		return fmt.Errorf("encode active tab: %w", err)
	}
	return c.put(ctx, c.configURL(sessionID)+"/active-tab", payload)
}

func (c *Client) put(ctx context.Context, target string, payload []byte) error {
	resp, err := c.do(ctx, http.MethodPut, target, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	case http.StatusConflict:
		return ErrStaleRevision
	default:
		return responseError(resp)
	}
}

func (c *Client) do(ctx context.Context, method, target string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	c.logger.Debug().
		Str("method", method).
		Str("url", target).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("remote call")
	return resp, nil
}

func (c *Client) configURL(sessionID string) string {
	return c.baseURL + "/api/config/" + url.PathEscape(sessionID)
}

func responseError(resp *http.Response) error {
	var body struct {
		Code  string `json:"code"`
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(raw, &body); err == nil && body.Code != "" {
		return fmt.Errorf("remote returned %d %s: %s", resp.StatusCode, body.Code, body.Error)
	}
	return fmt.Errorf("remote returned %d", resp.StatusCode)
}
