// Package backend talks to the William AI chat service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voiceorb/metrics"
	"voiceorb/playback"
	"voiceorb/stream"
)

const (
	VoicePath = "/api/v1/chat-voice"
	ChatPath  = "/api/v1/chat"
)

// ErrRateLimited is returned when the service answers 429.
var ErrRateLimited = errors.New("backend: rate limited")

// Client posts questions to the service and keeps the conversation id.
type Client struct {
	base    string
	http    *http.Client
	log     zerolog.Logger
	metrics *metrics.Metrics

	mu             sync.Mutex
	conversationID string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds each request, body included.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http = &http.Client{Timeout: d} }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l.With().Str("component", "backend").Logger() }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithConversation continues an existing conversation.
func WithConversation(id string) Option {
	return func(c *Client) { c.conversationID = id }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: http.DefaultClient,
		log:  zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ConversationID returns the current conversation id, empty before the first
// exchange.
func (c *Client) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

// NewConversation starts a fresh conversation and returns its id.
func (c *Client) NewConversation() string {
	id := uuid.NewString()
	c.mu.Lock()
	c.conversationID = id
	c.mu.Unlock()
	return id
}

// adopt takes the server's id only when none is set yet.
func (c *Client) adopt(id string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conversationID == "" {
		c.conversationID = id
		c.log.Debug().Str("conversation", id).Msg("conversation adopted")
	}
}

type chatRequest struct {
	ConversationID string `json:"conversationId,omitempty"`
	Message        string `json:"message"`
}

type chatResponse struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversationId"`
}

// Answer is a text reply.
type Answer struct {
	Text           string
	ConversationID string
}

// Voice returns a Fetcher that asks question on the voice endpoint. The
// controller may call it twice when it falls back to the whole payload.
func (c *Client) Voice(question string) playback.Fetcher {
	return func(ctx context.Context) (*stream.Response, error) {
		resp, err := c.post(ctx, VoicePath, question)
		if err != nil {
			return nil, err
		}
		r := stream.FromHTTP(resp)
		c.adopt(r.ConversationID)
		return r, nil
	}
}

// Chat asks question on the text endpoint.
func (c *Client) Chat(ctx context.Context, question string) (Answer, error) {
	resp, err := c.post(ctx, ChatPath, question)
	if err != nil {
		return Answer{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return Answer{}, ErrRateLimited
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Answer{}, fmt.Errorf("backend: %s: status %d: %s", ChatPath, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Answer{}, fmt.Errorf("backend: decode chat response: %w", err)
	}
	if out.ConversationID == "" {
		out.ConversationID = resp.Header.Get(stream.ConversationHeader)
	}
	c.adopt(out.ConversationID)
	return Answer{Text: out.Response, ConversationID: c.ConversationID()}, nil
}

func (c *Client) post(ctx context.Context, path, question string) (*http.Response, error) {
	body, err := json.Marshal(chatRequest{ConversationID: c.ConversationID(), Message: question})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordBackendRequest(path, "error")
		c.log.Warn().Err(err).Str("path", path).Msg("request failed")
		return nil, stream.Wrap(stream.KindTransportFailure, err)
	}
	c.metrics.RecordBackendRequest(path, strconv.Itoa(resp.StatusCode))
	c.log.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Str("content_type", resp.Header.Get("Content-Type")).
		Dur("took", time.Since(start)).
		Msg("response")
	return resp, nil
}
