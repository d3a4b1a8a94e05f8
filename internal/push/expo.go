// Package push sends notifications through the Expo push gateway
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	// DefaultGatewayURL is the Expo push send endpoint
	DefaultGatewayURL = "https://exp.host/--/api/v2/push/send"
	// MaxBatchSize is the largest recipient list sent in one gateway call
	MaxBatchSize = 90
)

var tokenPattern = regexp.MustCompile(`^Expo(nent)?PushToken\[[^\]]+\]$`)

// IsPushToken reports whether s looks like an Expo push token
func IsPushToken(s string) bool {
	return tokenPattern.MatchString(strings.TrimSpace(s))
}

// Batches splits tokens into consecutive chunks of at most size
func Batches(tokens []string, size int) [][]string {
	if size <= 0 {
		size = MaxBatchSize
	}
	var out [][]string
	for start := 0; start < len(tokens); start += size {
		end := min(start+size, len(tokens))
		out = append(out, tokens[start:end])
	}
	return out
}

// Message is one gateway request addressed to many tokens
type Message struct {
	To       []string       `json:"to"`
	Title    string         `json:"title,omitempty"`
	Body     string         `json:"body,omitempty"`
	Sound    string         `json:"sound,omitempty"`
	Priority string         `json:"priority,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// Ticket is the gateway's per-recipient answer
type Ticket struct {
	Status  string         `json:"status"`
	ID      string         `json:"id,omitempty"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Response is a successful gateway answer
type Response struct {
	Status  int
	Tickets []Ticket
}

// GatewayError is a non-2xx gateway answer
type GatewayError struct {
	Status int
	Body   string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("push gateway returned %d: %s", e.Status, e.Body)
}

// Sender delivers one message
type Sender interface {
	Send(ctx context.Context, msg Message) (*Response, error)
}

// Client implements Sender over HTTP
type Client struct {
	url         string
	accessToken string
	httpClient  *http.Client
}

// NewClient creates an Expo client. accessToken is optional.
func NewClient(url, accessToken string) *Client {
	if url == "" {
		url = DefaultGatewayURL
	}
	return &Client{
		url:         url,
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) Send(ctx context.Context, msg Message) (*Response, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode push message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &GatewayError{Status: resp.StatusCode, Body: string(body)}
	}

	var result struct {
		Data []Ticket `json:"data"`
	}
	// Ticket parsing is informational; the call already succeeded.
	_ = json.Unmarshal(body, &result)
	return &Response{Status: resp.StatusCode, Tickets: result.Data}, nil
}

var _ Sender = (*Client)(nil)
