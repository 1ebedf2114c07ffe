/*
PURPOSE:
  Fault-tolerant request client for the target inference server.
  Issues one measured chat-completion request per benchmark step.

REQUIREMENTS:
  User-specified:
  - Deterministic sampling (temperature 0, fixed stop sequence).
  - Send the draft length under test as `speculative_draft_length`.
  - Up to 3 attempts with 400ms exponential backoff.
  - Never fail the step because the reply text is empty.

  Implementation-discovered:
  - Latency is measured per attempt and charged even to non-2xx replies,
    since those are themselves a load signal.
  - Some servers return the answer in `reasoning_content` or the legacy
    `text` field instead of `message.content`.
  - Reasoning models prepend a `</think>` block and a preamble sentence.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine/runner.go, internal/cli/probe.go
  - Uses: internal/config, internal/model, internal/output

ERROR HANDLING:
  - Transport failures and non-2xx statuses are retryable.
  - Exhausted retries collapse into model.FailedOutcome(); the cause is logged, not returned.

IMPLEMENTATION RULES:
  - Use net/http.
  - Enforce timeouts (http.Client.Timeout).
  - One in-flight request at a time; retries sleep sequentially.

USAGE:
  c := engine.NewClient(cfg, metrics)
  out := c.Send(ctx, prompt, 4)

SELF-HEALING INSTRUCTIONS:
  - If the server's response shape changes, update chatResponse and extractReply.

RELATED FILES:
  - internal/config/config.go
  - internal/model/types.go

MAINTENANCE:
  - Update for new server API fields.
*/

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"

	"github.com/daryltucker/halospec-bench/internal/config"
	"github.com/daryltucker/halospec-bench/internal/model"
	"github.com/daryltucker/halospec-bench/internal/output"
)

const (
	// DefaultTokens is charged when the server omits usage.completion_tokens.
	DefaultTokens = 64

	// EmptyReply stands in for a reply with no usable text.
	EmptyReply = "(empty reply)"

	// MaxReplyPreview bounds the logged reply in runes.
	MaxReplyPreview = 140

	thinkCloseTag = "</think>"
)

// ErrTransport marks a failure to get any HTTP response (refused, timeout, DNS).
var ErrTransport = errors.New("transport failure")

// StatusError is a non-2xx reply from the target server.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Body)
}

// Sender issues one measured request. Client is the production implementation.
type Sender interface {
	Send(ctx context.Context, prompt string, draft model.DraftLength) model.Outcome
}

// Client handles requests against the target server.
type Client struct {
	URL            string
	Model          string
	SystemPrompt   string
	MaxTokens      int
	Stop           []string
	MaxAttempts    int
	InitialBackoff time.Duration

	HTTP    *http.Client
	Metrics *Metrics
}

// NewClient creates a Client from cfg. m may be nil.
func NewClient(cfg *config.Config, m *Metrics) *Client {
	return &Client{
		URL:            cfg.URL,
		Model:          cfg.Model,
		SystemPrompt:   cfg.SystemPrompt,
		MaxTokens:      cfg.MaxTokens,
		Stop:           cfg.Stop,
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: cfg.InitialBackoff,
		HTTP:           &http.Client{Timeout: cfg.RequestTimeout},
		Metrics:        m,
	}
}

type chatRequest struct {
	Model                  string                         `json:"model"`
	Messages               []openai.ChatCompletionMessage `json:"messages"`
	Stream                 bool                           `json:"stream"`
	Temperature            float32                        `json:"temperature"`
	MaxTokens              int                            `json:"max_tokens,omitempty"`
	Stop                   []string                       `json:"stop,omitempty"`
	SpeculativeDraftLength int                            `json:"speculative_draft_length"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"message"`
		Text string `json:"text"`
	} `json:"choices"`
	Usage *struct {
		CompletionTokens *int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *Client) payload(prompt string, draft model.DraftLength) ([]byte, error) {
	var msgs []openai.ChatCompletionMessage
	if c.SystemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: c.SystemPrompt})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	return json.Marshal(chatRequest{
		Model:                  c.Model,
		Messages:               msgs,
		Stream:                 false,
		Temperature:            0,
		MaxTokens:              c.MaxTokens,
		Stop:                   c.Stop,
		SpeculativeDraftLength: int(draft),
	})
}

// Send delivers prompt at the given draft length and returns the measured outcome.
// It never returns an error: a request that fails every attempt yields
// model.FailedOutcome().
func (c *Client) Send(ctx context.Context, prompt string, draft model.DraftLength) model.Outcome {
	reqBody, err := c.payload(prompt, draft)
	if err != nil {
		output.Logger.Error("Failed to encode request", "error", err)
		return model.FailedOutcome()
	}

	attempts := c.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := c.InitialBackoff

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			output.Logger.Debug("Retrying request...", "attempt", i+1, "backoff", backoff, "error", lastErr)
			if err := sleepCtx(ctx, backoff); err != nil {
				lastErr = err
				break
			}
			backoff *= 2
		}

		resp, latency, err := c.attempt(ctx, reqBody)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		tokens := DefaultTokens
		if resp.Usage != nil && resp.Usage.CompletionTokens != nil {
			tokens = *resp.Usage.CompletionTokens
		}
		return model.Outcome{
			Success: true,
			Latency: latency,
			Tokens:  tokens,
			Reply:   extractReply(resp),
		}
	}

	output.Logger.Warn("Request failed after retries", "draft_length", draft, "attempts", attempts, "error", lastErr)
	return model.FailedOutcome()
}

// attempt performs one delivery and classifies its failure.
func (c *Client) attempt(ctx context.Context, reqBody []byte) (chatResponse, time.Duration, error) {
	var data chatResponse

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(reqBody))
	if err != nil {
		return data, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.Metrics.observeAttempt("transport", time.Since(start).Seconds())
		return data, 0, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	latency := time.Since(start)
	if err != nil {
		c.Metrics.observeAttempt("transport", latency.Seconds())
		return data, latency, fmt.Errorf("%w: reading body: %w", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.Metrics.observeAttempt("status", latency.Seconds())
		output.Logger.Debug("Non-2xx reply", "status", resp.StatusCode, "latency_ms", latency.Milliseconds())
		return data, latency, &StatusError{Code: resp.StatusCode, Body: truncateRunes(strings.TrimSpace(string(body)), 200)}
	}

	if err := json.Unmarshal(body, &data); err != nil {
		c.Metrics.observeAttempt("decode", latency.Seconds())
		return data, latency, fmt.Errorf("server returned invalid JSON: %w", err)
	}

	c.Metrics.observeAttempt("ok", latency.Seconds())
	return data, latency, nil
}

// extractReply picks the first non-blank text field and reduces it to a
// loggable one-sentence preview.
func extractReply(resp chatResponse) string {
	text := ""
	if len(resp.Choices) > 0 {
		ch := resp.Choices[0]
		for _, candidate := range []string{ch.Message.Content, ch.Message.ReasoningContent, ch.Text} {
			if strings.TrimSpace(candidate) != "" {
				text = candidate
				break
			}
		}
	}
	return sanitizeReply(text)
}

func sanitizeReply(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.LastIndex(text, thinkCloseTag); i >= 0 {
		text = strings.TrimSpace(text[i+len(thinkCloseTag):])
	}

	var fragments []string
	for _, f := range strings.FieldsFunc(text, isSentenceEnd) {
		if f = strings.TrimSpace(f); f != "" {
			fragments = append(fragments, f)
		}
	}
	if len(fragments) >= 2 {
		text = fragments[len(fragments)-1] + "."
	}

	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return EmptyReply
	}
	return truncateRunes(text, MaxReplyPreview)
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// sleepCtx blocks for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
