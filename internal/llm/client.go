// Package llm is the Ollama chat client: blocking and streaming completion,
// a cheap should-respond classifier, and a startup health probe. Failures
// never leak raw errors to chat; they surface as per-language apology
// strings.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamforge/streambot/internal/metrics"
)

// Request is one completion request. History, when present, is sent as the
// chat message list with Prompt appended as the final user turn.
type Request struct {
	Prompt  string
	System  string
	History []Message
}

// Message is a single chat turn on the wire.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generation parameters. Chat responses are sampled loosely; the
// should-respond classifier runs nearly deterministic; the health probe is
// fully deterministic and tiny.
const (
	chatTemperature     = 0.7
	chatTopP            = 0.9
	chatNumPredict      = 1024
	classifyTemperature = 0.2
	healthTemperature   = 0.0
	healthNumPredict    = 10

	maxAttempts = 3
	// streamMinChunk is the smallest fragment the stream yields; raw NDJSON
	// deltas are coalesced up to this size so consumers aren't flooded with
	// single-character sends.
	streamMinChunk = 4
)

// Client talks to one Ollama server.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client

	completeTimeout time.Duration
	streamTimeout   time.Duration
	classifyTimeout time.Duration
	// backoffUnit is the base retry delay (1 unit, then 2). Production
	// uses one second.
	backoffUnit time.Duration
	// languageFn supplies the active response language for apology lookup.
	languageFn func() string

	log zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithTimeouts overrides the per-operation deadlines.
func WithTimeouts(complete, stream, classify time.Duration) Option {
	return func(c *Client) {
		c.completeTimeout = complete
		c.streamTimeout = stream
		c.classifyTimeout = classify
	}
}

// WithBackoffUnit overrides the base retry delay.
func WithBackoffUnit(d time.Duration) Option {
	return func(c *Client) { c.backoffUnit = d }
}

// WithLanguage sets the function that reports the active response language.
func WithLanguage(fn func() string) Option {
	return func(c *Client) { c.languageFn = fn }
}

// WithLogger sets the client logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New returns a Client for the given Ollama server and model.
func New(baseURL, model string, opts ...Option) *Client {
	c := &Client{
		baseURL:         strings.TrimSuffix(baseURL, "/"),
		model:           model,
		httpClient:      &http.Client{},
		completeTimeout: 45 * time.Second,
		streamTimeout:   60 * time.Second,
		classifyTimeout: 10 * time.Second,
		backoffUnit:     time.Second,
		languageFn:      func() string { return "english" },
		log:             zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Wire types for /api/chat and /api/generate.

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p,omitempty"`
	NumPredict  int     `json:"num_predict"`
}

type chatRequest struct {
	Model    string      `json:"model"`
	Prompt   string      `json:"prompt,omitempty"`
	System   string      `json:"system"`
	Stream   bool        `json:"stream"`
	Options  chatOptions `json:"options"`
	Messages []Message   `json:"messages,omitempty"`
}

type chatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
}

type generateRequest struct {
	Model   string      `json:"model"`
	Prompt  string      `json:"prompt"`
	System  string      `json:"system,omitempty"`
	Stream  bool        `json:"stream"`
	Options chatOptions `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (c *Client) chatPayload(req Request, stream bool) chatRequest {
	payload := chatRequest{
		Model:  c.model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: stream,
		Options: chatOptions{
			Temperature: chatTemperature,
			TopP:        chatTopP,
			NumPredict:  chatNumPredict,
		},
	}
	if len(req.History) > 0 {
		msgs := make([]Message, 0, len(req.History)+1)
		msgs = append(msgs, req.History...)
		msgs = append(msgs, Message{Role: "user", Content: req.Prompt})
		payload.Messages = msgs
	}
	return payload
}

// post sends one JSON request. The context deadline rides the request, so a
// timed-out call is canceled at the backend rather than abandoned.
func (c *Client) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.httpClient.Do(req)
}

// Complete generates a blocking response. It retries transient failures
// (three attempts, delays of 1 and 2 backoff units) and on exhaustion
// returns the apology string for the failure class in the active language.
func (c *Client) Complete(ctx context.Context, req Request) string {
	payload := c.chatPayload(req, false)

	var lastClass string
	delay := c.backoffUnit
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				metrics.LLMFailures.WithLabelValues(classTimeout).Inc()
				return c.apology(classTimeout)
			}
			delay *= 2
		}

		start := time.Now()
		text, class, err := c.completeOnce(ctx, payload)
		if err == nil {
			metrics.LLMRequestDuration.Observe(time.Since(start).Seconds())
			return text
		}
		lastClass = class
		c.log.Warn().Err(err).Int("attempt", attempt+1).Int("max", maxAttempts).
			Str("class", class).Msg("completion attempt failed")
	}

	metrics.LLMFailures.WithLabelValues(lastClass).Inc()
	return c.apology(lastClass)
}

func (c *Client) completeOnce(ctx context.Context, payload chatRequest) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.completeTimeout)
	defer cancel()

	resp, err := c.post(ctx, "/api/chat", payload)
	if err != nil {
		return "", classify(err), err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", classConnection, fmt.Errorf("ollama status %d: %s", resp.StatusCode, body)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", classMalformed, fmt.Errorf("decode chat response: %w", err)
	}
	if strings.TrimSpace(out.Message.Content) == "" {
		return "", classMalformed, errors.New("empty completion content")
	}
	return strings.TrimSpace(out.Message.Content), "", nil
}

// CompleteStream generates a streaming response. The returned channel is
// finite and ordered; raw deltas are coalesced to at least streamMinChunk
// characters. A mid-stream failure yields exactly one apology fragment
// before the channel closes. The caller assembles the full text itself.
func (c *Client) CompleteStream(ctx context.Context, req Request) <-chan string {
	out := make(chan string)
	payload := c.chatPayload(req, true)

	go func() {
		defer close(out)

		ctx, cancel := context.WithTimeout(ctx, c.streamTimeout)
		defer cancel()

		start := time.Now()
		resp, err := c.post(ctx, "/api/chat", payload)
		if err != nil {
			class := classify(err)
			metrics.LLMFailures.WithLabelValues(class).Inc()
			c.log.Error().Err(err).Msg("stream request failed")
			out <- c.apology(class)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			metrics.LLMFailures.WithLabelValues(classConnection).Inc()
			out <- c.apology(classConnection)
			return
		}

		var buffer strings.Builder
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var delta chatResponse
			if err := json.Unmarshal(line, &delta); err != nil {
				c.log.Warn().Err(err).Msg("skipping malformed stream line")
				continue
			}
			buffer.WriteString(delta.Message.Content)
			if buffer.Len() >= streamMinChunk || delta.Done {
				if buffer.Len() > 0 {
					select {
					case out <- buffer.String():
					case <-ctx.Done():
						return
					}
					buffer.Reset()
				}
			}
			if delta.Done {
				metrics.LLMRequestDuration.Observe(time.Since(start).Seconds())
				return
			}
		}
		if buffer.Len() > 0 {
			select {
			case out <- buffer.String():
			case <-ctx.Done():
			}
		}
		if err := scanner.Err(); err != nil {
			class := classify(err)
			metrics.LLMFailures.WithLabelValues(class).Inc()
			c.log.Error().Err(err).Msg("stream read failed")
			select {
			case out <- c.apology(class):
			case <-ctx.Done():
			}
		}
	}()
	return out
}

// classifyInstruction tells the model how to vote on unaddressed messages.
const classifyInstruction = "Eres un asistente que decide si un mensaje de chat merece una respuesta. " +
	"Si el mensaje requiere una respuesta, devuelve 'RESPOND: [tu respuesta]'. " +
	"Si no requiere respuesta, devuelve 'IGNORE'."

// ClassifyShouldRespond asks the model whether an unaddressed message
// deserves a reply. It returns the suggested reply when the model votes
// RESPOND, and (false, "") on IGNORE or any failure.
func (c *Client) ClassifyShouldRespond(ctx context.Context, message string) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, c.classifyTimeout)
	defer cancel()

	payload := generateRequest{
		Model:   c.model,
		Prompt:  message,
		System:  classifyInstruction,
		Stream:  false,
		Options: chatOptions{Temperature: classifyTemperature, NumPredict: chatNumPredict},
	}
	resp, err := c.post(ctx, "/api/generate", payload)
	if err != nil {
		c.log.Debug().Err(err).Msg("should-respond classification failed")
		return false, ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, ""
	}
	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, ""
	}

	result := strings.TrimSpace(out.Response)
	if strings.HasPrefix(result, "RESPOND:") {
		suggestion := strings.TrimSpace(strings.TrimPrefix(result, "RESPOND:"))
		if suggestion != "" {
			return true, suggestion
		}
	}
	return false, ""
}

// HealthCheck probes the backend with a deterministic one-token request.
// It returns ok plus a human-readable status line.
func (c *Client) HealthCheck(ctx context.Context) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	payload := chatRequest{
		Model:    c.model,
		System:   "You are a health check. Reply with one word.",
		Stream:   false,
		Options:  chatOptions{Temperature: healthTemperature, NumPredict: healthNumPredict},
		Messages: []Message{{Role: "user", Content: "ping"}},
	}
	resp, err := c.post(ctx, "/api/chat", payload)
	if err != nil {
		return false, fmt.Sprintf("ollama unreachable at %s: %v", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Sprintf("ollama returned status %d (is model %q pulled?)", resp.StatusCode, c.model)
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Sprintf("ollama sent malformed response: %v", err)
	}
	return true, fmt.Sprintf("model %s responding", c.model)
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}
