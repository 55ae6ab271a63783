// Package llm forwards chat completion requests to caller-specified
// OpenAI-compatible endpoints, streaming or not.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const DefaultCompletionsPath = "/v1/chat/completions"

// maxErrorBody caps how much of an upstream error body is carried back.
const maxErrorBody = 4 << 20

var modelIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,127}$`)

var (
	ErrMissingBaseURL  = errors.New("model apiBaseUrl is required")
	ErrUnresolvedModel = errors.New("model modelId is required")
)

// UpstreamError carries the upstream status code and body text where
// available; StatusCode is 0 for pure transport failures.
type UpstreamError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream: %v", e.Err)
	}
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

type ModelRef struct {
	Name            string
	APIBaseURL      string
	ModelID         string
	APIKey          string
	Headers         Headers
	CompletionsPath string
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Model       ModelRef
	Messages    []ChatMessage
	Stream      bool
	Temperature *float64
	MaxTokens   *int64
}

// Validate runs every check that must pass before any network call. An
// empty messages list is forwarded as-is; the upstream decides what to do
// with it.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Model.APIBaseURL) == "" {
		return ErrMissingBaseURL
	}
	if _, err := r.resolveModelID(); err != nil {
		return err
	}
	return nil
}

// resolveModelID prefers the explicit model id; the config name doubles as
// the id only when it already looks like one.
func (r Request) resolveModelID() (string, error) {
	if id := strings.TrimSpace(r.Model.ModelID); id != "" {
		return id, nil
	}
	name := strings.TrimSpace(r.Model.Name)
	if name != "" && modelIDPattern.MatchString(name) {
		return name, nil
	}
	return "", ErrUnresolvedModel
}

type Config struct {
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

type Client struct {
	jsonClient   *http.Client
	streamClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 60 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 120 * time.Second
	}
	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ConnectTimeout,
	}
	return &Client{
		jsonClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
		// Streams may legitimately run for minutes; only connection
		// setup is bounded.
		streamClient: &http.Client{Transport: transport},
	}
}

// Complete performs the non-streaming exchange and returns the upstream
// JSON body verbatim.
func (c *Client) Complete(ctx context.Context, req Request) ([]byte, error) {
	httpReq, err := c.buildRequest(ctx, req, false)
	if err != nil {
		return nil, err
	}

	resp, err := c.jsonClient.Do(httpReq)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return nil, &UpstreamError{Err: fmt.Errorf("read response body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// OpenStream opens the streaming exchange. On success the caller owns the
// response body; a non-200 upstream is drained, closed, and surfaced as an
// UpstreamError without relaying anything.
func (c *Client) OpenStream(ctx context.Context, req Request) (*http.Response, error) {
	httpReq, err := c.buildRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}

func (c *Client) buildRequest(ctx context.Context, req Request, stream bool) (*http.Request, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	modelID, err := req.resolveModelID()
	if err != nil {
		return nil, err
	}

	messages := req.Messages
	if messages == nil {
		messages = []ChatMessage{}
	}
	body := map[string]any{
		"model":    modelID,
		"messages": messages,
		"stream":   stream,
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if req.MaxTokens != nil {
		body["max_tokens"] = *req.MaxTokens
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal completion payload: %w", err)
	}

	url := buildCompletionsURL(req.Model.APIBaseURL, req.Model.CompletionsPath)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range MergeHeaders(req.Model.Headers, req.Model.APIKey) {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

func buildCompletionsURL(baseURL, path string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if path = strings.TrimSpace(path); path == "" {
		path = DefaultCompletionsPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}
