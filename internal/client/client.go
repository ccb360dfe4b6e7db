// internal/client/client.go
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"rpchat/internal/formatting"
	"rpchat/internal/logger"
	"rpchat/internal/models"
	"rpchat/internal/stream"
)

const maxErrorBody = 64 * 1024

// StatusError is a non-2xx answer, or an envelope with success=false
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned HTTP %d: %s", e.StatusCode, e.Message)
}

// envelope is the backend's standard response wrapper
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// Client talks to the roleplay backend
type Client struct {
	baseURL string
	http    *RetryableClient
	stream  *http.Client
}

// Option configures a Client
type Option func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	retry      RetryConfig
	timeout    time.Duration
}

// WithHTTPClient replaces the underlying HTTP client for both regular and streaming calls
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = c
	}
}

// WithRetry sets the retry policy for idempotent calls
func WithRetry(cfg RetryConfig) Option {
	return func(o *clientOptions) {
		o.retry = cfg
	}
}

// WithTimeout bounds non-streaming calls. Streams are bounded by their context only.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.timeout = d
	}
}

// New creates a client for the backend at baseURL
func New(baseURL string, opts ...Option) (*Client, error) {
	normalized, err := normalizeServerURL(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}

	o := clientOptions{
		retry:   DefaultRetryConfig(),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var regular, streaming *http.Client
	if o.httpClient != nil {
		regular = &http.Client{Transport: o.httpClient.Transport, Timeout: o.timeout}
		streaming = o.httpClient
	} else {
		transport := newTransport()
		regular = &http.Client{Transport: transport, Timeout: o.timeout}
		streaming = &http.Client{Transport: transport}
	}

	return &Client{
		baseURL: normalized,
		http:    NewRetryableClient(regular, o.retry),
		stream:  streaming,
	}, nil
}

// BaseURL returns the normalized backend address
func (c *Client) BaseURL() string {
	return c.baseURL
}

// normalizeServerURL ensures a scheme and drops any trailing slash
func normalizeServerURL(server string) (string, error) {
	server = strings.TrimSpace(server)
	if server == "" {
		return "", fmt.Errorf("empty URL")
	}
	if !strings.Contains(server, "://") {
		server = "http://" + server
	}

	u, err := url.Parse(server)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid server URL %q", server)
	}

	return strings.TrimRight(fmt.Sprintf("%s://%s%s", u.Scheme, u.Host, u.Path), "/"), nil
}

func (c *Client) sessionPath(sessionID int64, suffix string) string {
	return fmt.Sprintf("%s/api/v1/chat-sessions/%d%s", c.baseURL, sessionID, suffix)
}

type sendRequest struct {
	Content string `json:"content"`
	Stream  bool   `json:"stream"`
}

// nonStreamingReply is the JSON answer when the backend does not stream
type nonStreamingReply struct {
	UserMessage *models.Message `json:"user_message"`
	AIMessage   *models.Message `json:"ai_message"`
}

// SendMessage posts a user message and returns the reply as an event source.
// It is never retried: a retry could store the message twice.
func (c *Client) SendMessage(ctx context.Context, sessionID int64, content string) (stream.Source, error) {
	body, err := sonic.Marshal(sendRequest{Content: content, Stream: true})
	if err != nil {
		return nil, err
	}

	req, err := NewRequestWithBody(ctx, http.MethodPost, c.sessionPath(sessionID, "/send-message"), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, readStatusError(resp)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		defer resp.Body.Close()
		return decodeNonStreaming(resp)
	}

	logger.WithComponent("client").WithField("session", sessionID).Debug("reply stream opened")
	return stream.NewDecoder(resp.Body), nil
}

// decodeNonStreaming turns a complete JSON reply into the same events a stream carries
func decodeNonStreaming(resp *http.Response) (stream.Source, error) {
	var reply nonStreamingReply
	if err := decodeBody(resp, &reply); err != nil {
		return nil, err
	}

	var events []stream.Event
	done := stream.Event{Type: stream.TypeDone}
	if reply.UserMessage != nil {
		events = append(events, stream.Event{Type: stream.TypeUserMessageSaved, UserMessageID: stream.ID(reply.UserMessage.ID)})
		done.UserMessageID = stream.ID(reply.UserMessage.ID)
	}
	if reply.AIMessage != nil {
		events = append(events, stream.Event{Type: stream.TypeContent, Data: reply.AIMessage.Content})
		done.AIMessageID = stream.ID(reply.AIMessage.ID)
	}
	events = append(events, done)
	return stream.FromEvents(events...), nil
}

// CancelMessage asks the backend to stop generating for the session
func (c *Client) CancelMessage(ctx context.Context, sessionID int64) error {
	return c.call(ctx, http.MethodPost, c.sessionPath(sessionID, "/cancel-message"), nil, nil, true)
}

// GetChatSession loads a chat session
func (c *Client) GetChatSession(ctx context.Context, sessionID int64) (*models.ChatSession, error) {
	var session models.ChatSession
	if err := c.call(ctx, http.MethodGet, c.sessionPath(sessionID, ""), nil, &session, true); err != nil {
		return nil, err
	}
	return &session, nil
}

type messagePage struct {
	Items []models.Message `json:"items"`
}

// GetMessages loads the session's messages in chronological order
func (c *Client) GetMessages(ctx context.Context, sessionID int64) ([]models.Message, error) {
	var page messagePage
	if err := c.call(ctx, http.MethodGet, c.sessionPath(sessionID, "/messages"), nil, &page, true); err != nil {
		return nil, err
	}
	models.SortByTimestamp(page.Items)
	return page.Items, nil
}

// GetCharacter loads a character
func (c *Client) GetCharacter(ctx context.Context, characterID int64) (*models.Character, error) {
	var character models.Character
	path := fmt.Sprintf("%s/api/v1/characters/%d", c.baseURL, characterID)
	if err := c.call(ctx, http.MethodGet, path, nil, &character, true); err != nil {
		return nil, err
	}
	return &character, nil
}

// GetSettings loads the application settings
func (c *Client) GetSettings(ctx context.Context) (*models.ApplicationSettings, error) {
	var settings models.ApplicationSettings
	if err := c.call(ctx, http.MethodGet, c.baseURL+"/api/v1/settings/", nil, &settings, true); err != nil {
		return nil, err
	}
	return &settings, nil
}

type formattingUpdate struct {
	FormattingSettings *formatting.Settings `json:"formatting_settings"`
}

// UpdateSessionFormatting stores a session's formatting override. Nil clears it.
func (c *Client) UpdateSessionFormatting(ctx context.Context, sessionID int64, settings *formatting.Settings) (*models.ChatSession, error) {
	var session models.ChatSession
	in := formattingUpdate{FormattingSettings: settings}
	if err := c.call(ctx, http.MethodPut, c.sessionPath(sessionID, ""), in, &session, true); err != nil {
		return nil, err
	}
	return &session, nil
}

type firstMessageRequest struct {
	Content string `json:"content"`
}

// AddFirstMessage stores the chosen opening line as the session's first message
func (c *Client) AddFirstMessage(ctx context.Context, sessionID int64, content string) (*models.Message, error) {
	var msg models.Message
	in := firstMessageRequest{Content: content}
	if err := c.call(ctx, http.MethodPost, c.sessionPath(sessionID, "/first-message"), in, &msg, false); err != nil {
		return nil, err
	}
	return &msg, nil
}

// call sends in as JSON and decodes the answer into out
func (c *Client) call(ctx context.Context, method, path string, in, out any, retry bool) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = sonic.Marshal(in); err != nil {
			return err
		}
	}

	req, err := NewRequestWithBody(ctx, method, path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	var resp *http.Response
	if retry {
		resp, err = c.http.DoWithRetry(ctx, req)
	} else {
		resp, err = c.http.Do(req)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, strings.TrimPrefix(path, c.baseURL), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readStatusError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return decodeBody(resp, out)
}

// decodeBody unwraps the envelope when present and decodes the payload
func decodeBody(resp *http.Response, out any) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	payload := data
	var env envelope
	if err := sonic.Unmarshal(data, &env); err == nil && env.Success != nil {
		if !*env.Success {
			return &StatusError{StatusCode: resp.StatusCode, Message: errorText(env.Error)}
		}
		payload = env.Data
	}

	if len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	if err := sonic.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func readStatusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
}

// errorMessage pulls a readable message out of an error body
func errorMessage(data []byte) string {
	var env envelope
	if err := sonic.Unmarshal(data, &env); err == nil && len(env.Error) > 0 {
		if msg := errorText(env.Error); msg != "" {
			return msg
		}
	}

	var detail struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := sonic.Unmarshal(data, &detail); err == nil {
		if detail.Detail != "" {
			return detail.Detail
		}
		if detail.Message != "" {
			return detail.Message
		}
	}

	return strings.TrimSpace(string(data))
}

// errorText reads an envelope error given either as a string or as {message}
func errorText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := sonic.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	if err := sonic.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return strings.TrimSpace(string(raw))
}
