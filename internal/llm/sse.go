package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reviewstream/pkg/models"
)

// doneSentinel terminates an OpenAI-compatible SSE stream.
const doneSentinel = "[DONE]"

// sseFrame is the payload shape of one streamed completion frame.
type sseFrame struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// ParseSSE reads server-sent-event frames from r and calls emit for every
// non-empty content fragment, preserving order. Malformed frames are
// skipped silently; the terminal sentinel ends the scan cleanly.
func ParseSSE(ctx context.Context, r io.Reader, emit func(content string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == doneSentinel {
			return nil
		}

		var frame sseFrame
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			// Malformed frame: skip and keep reading.
			continue
		}
		for _, choice := range frame.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if err := emit(choice.Delta.Content); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return &models.LlmError{Kind: models.LlmTransport, Cause: err}
	}
	return nil
}

// RawSSEClient talks to an OpenAI-compatible /chat/completions endpoint
// directly over HTTP. One shared http.Client serves all calls.
type RawSSEClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewRawSSEClient builds a raw streaming client. baseURL points at the API
// root (the /chat/completions suffix is appended here).
func NewRawSSEClient(baseURL, apiKey, model string) *RawSSEClient {
	return &RawSSEClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		// No overall timeout: streams legitimately run for minutes and the
		// caller bounds them with ctx.
		httpClient: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: 2 * time.Minute,
				TLSHandshakeTimeout:   30 * time.Second,
			},
		},
	}
}

func (c *RawSSEClient) ProviderName() string { return "openai-compatible" }
func (c *RawSSEClient) ModelName() string    { return c.model }

// Stream implements StreamClient over the raw SSE protocol.
func (c *RawSSEClient) Stream(ctx context.Context, prompt string, fn StreamFunc) error {
	body := map[string]interface{}{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"stream": true,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return &models.LlmError{Kind: models.LlmMalformed, Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return &models.LlmError{Kind: models.LlmTransport, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Warn().Int("status", resp.StatusCode).Str("body", string(snippet)).Msg("LLM stream request rejected")
		return &models.LlmError{
			Kind:  models.LlmTransport,
			Cause: fmt.Errorf("stream request failed with status %d: %s", resp.StatusCode, string(snippet)),
		}
	}

	return ParseSSE(ctx, resp.Body, func(content string) error {
		return fn(ctx, content)
	})
}

func llmTimeout(err error) error {
	return &models.LlmError{Kind: models.LlmTimeout, Cause: err}
}

func llmTransport(err error) error {
	return &models.LlmError{Kind: models.LlmTransport, Cause: err}
}
