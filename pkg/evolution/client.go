package evolution

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
	"sync"
	"time"
)

const userAgent = "agendazap-dispatcher/1.0"

// Instance addresses one connected WhatsApp session on an API host.
type Instance struct {
	Host   string
	APIKey string
	Name   string
}

func (i Instance) validate() error {
	if i.Host == "" || i.APIKey == "" || i.Name == "" {
		return fmt.Errorf("%w: host, api key and instance name are required", ErrInvalidInstance)
	}
	u, err := url.Parse(i.Host)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInstance, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: host must be an http or https url", ErrInvalidInstance)
	}
	return nil
}

// Result is what the API answered for an accepted message.
type Result struct {
	StatusCode int
	MessageID  string
	Status     string
}

// MediaMessage is the body of a media send. Media holds base64 data.
type MediaMessage struct {
	Number    string `json:"number"`
	MediaType string `json:"mediatype"`
	MimeType  string `json:"mimetype"`
	Caption   string `json:"caption,omitempty"`
	Media     string `json:"media"`
	FileName  string `json:"fileName"`
}

type textMessage struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

// buttonMessage carries the notification body in description. Definitions
// have no header or footer text, so title and footer are left out.
type buttonMessage struct {
	Number      string      `json:"number"`
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description"`
	Footer      string      `json:"footer,omitempty"`
	Buttons     []urlButton `json:"buttons"`
}

type urlButton struct {
	Type        string `json:"type"`
	DisplayText string `json:"displayText"`
	URL         string `json:"url"`
}

// Client talks to the Evolution WhatsApp API. It keeps one circuit breaker
// per instance and never retries on its own; retries belong to the caller.
type Client struct {
	http             *http.Client
	timeout          time.Duration
	maxResponseBytes int64

	circuitFailures int
	circuitRecovery time.Duration

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the pooled default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

// WithCircuitBreaker sets the failure threshold and recovery timeout of the
// per-instance breakers.
func WithCircuitBreaker(failures int, recovery time.Duration) Option {
	return func(cl *Client) {
		cl.circuitFailures = failures
		cl.circuitRecovery = recovery
	}
}

// WithMaxResponseBytes bounds how much of a response body is read.
func WithMaxResponseBytes(n int64) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.maxResponseBytes = n
		}
	}
}

// NewClient creates a client with a pooled transport and a 60s timeout.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		timeout:          60 * time.Second,
		maxResponseBytes: 64 * 1024,
		breakers:         make(map[string]*CircuitBreaker),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig creates a client from cfg; opts are applied last.
func NewFromConfig(cfg Config, opts ...Option) *Client {
	base := []Option{
		WithTimeout(cfg.Timeout),
		WithCircuitBreaker(cfg.CircuitFailures, cfg.CircuitRecovery),
		WithMaxResponseBytes(cfg.MaxResponseBytes),
	}
	c := NewClient(append(base, opts...)...)
	if t, ok := c.http.Transport.(*http.Transport); ok && cfg.MaxIdleConns > 0 {
		t.MaxIdleConns = cfg.MaxIdleConns
	}
	return c
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, inst Instance, number, text string) (Result, error) {
	if number == "" || text == "" {
		return Result{}, fmt.Errorf("%w: number and text are required", ErrInvalidMessage)
	}
	return c.post(ctx, inst, "message/sendText", textMessage{Number: number, Text: text})
}

// SendButtonText sends text with a single link button.
func (c *Client) SendButtonText(ctx context.Context, inst Instance, number, text, label, link string) (Result, error) {
	if number == "" || label == "" || link == "" {
		return Result{}, fmt.Errorf("%w: number, button label and url are required", ErrInvalidMessage)
	}
	return c.post(ctx, inst, "message/sendButtons", buttonMessage{
		Number:      number,
		Description: text,
		Buttons:     []urlButton{{Type: "url", DisplayText: label, URL: link}},
	})
}

// SendMedia sends an image, video, document or audio file.
func (c *Client) SendMedia(ctx context.Context, inst Instance, msg MediaMessage) (Result, error) {
	if msg.Number == "" || msg.MediaType == "" || msg.Media == "" {
		return Result{}, fmt.Errorf("%w: number, media type and media are required", ErrInvalidMessage)
	}
	return c.post(ctx, inst, "message/sendMedia", msg)
}

// Breaker returns the circuit breaker guarding inst.
func (c *Client) Breaker(inst Instance) *CircuitBreaker {
	key := strings.TrimRight(inst.Host, "/") + "|" + inst.Name

	c.mu.Lock()
	defer c.mu.Unlock()
	cb, ok := c.breakers[key]
	if !ok {
		cb = NewCircuitBreaker(c.circuitFailures, c.circuitRecovery)
		c.breakers[key] = cb
	}
	return cb
}

func (c *Client) post(ctx context.Context, inst Instance, endpoint string, body any) (Result, error) {
	if err := inst.validate(); err != nil {
		return Result{}, err
	}

	breaker := c.Breaker(inst)
	if !breaker.Allow() {
		return Result{}, fmt.Errorf("%w: %w", ErrUnavailable, ErrCircuitOpen)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	endpointURL := strings.TrimRight(inst.Host, "/") + "/" + endpoint + "/" + url.PathEscape(inst.Name)

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpointURL, bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("apikey", inst.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		breaker.RecordFailure()
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return Result{}, fmt.Errorf("%w: %w: %w", ErrUnavailable, ErrTimeout, err)
		}
		return Result{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes))
	result := Result{StatusCode: resp.StatusCode}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if temporaryStatus(resp.StatusCode) {
			breaker.RecordFailure()
			return result, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, sanitize(raw))
		}
		breaker.RecordSuccess()
		return result, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, sanitize(raw))
	}
	if readErr != nil {
		breaker.RecordFailure()
		return result, fmt.Errorf("%w: read response: %w", ErrUnavailable, readErr)
	}
	breaker.RecordSuccess()

	if len(bytes.TrimSpace(raw)) == 0 {
		return result, nil
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return result, nil
	}
	if msg, failed := errorPayload(decoded); failed {
		return result, fmt.Errorf("%w: %s", ErrRejected, msg)
	}
	result.Status, _ = decoded["status"].(string)
	if key, ok := decoded["key"].(map[string]any); ok {
		result.MessageID, _ = key["id"].(string)
	}
	return result, nil
}

// errorPayload detects an error reported inside a 2xx body.
func errorPayload(body map[string]any) (string, bool) {
	status, _ := body["status"].(string)
	errValue, hasErr := body["error"]
	switch v := errValue.(type) {
	case nil:
		hasErr = false
	case bool:
		hasErr = v
	case string:
		hasErr = v != ""
	}
	if !hasErr && !strings.EqualFold(status, "error") {
		return "", false
	}
	if msg, ok := body["message"]; ok {
		return sanitize(fmt.Appendf(nil, "%v", msg)), true
	}
	if hasErr {
		return sanitize(fmt.Appendf(nil, "%v", errValue)), true
	}
	return "unknown error", true
}

// temporaryStatus reports responses that mean the API is down or throttling.
func temporaryStatus(code int) bool {
	switch {
	case code >= 500:
		return true
	case code == http.StatusRequestTimeout, code == http.StatusTooEarly, code == http.StatusTooManyRequests:
		return true
	}
	return false
}

// sanitize keeps response excerpts on one short log line.
func sanitize(body []byte) string {
	s := strings.Join(strings.Fields(string(body)), " ")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
