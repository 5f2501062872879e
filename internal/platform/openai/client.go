// Package openai is a minimal chat-completions client for OpenAI-compatible
// APIs. It implements the advisory second opinion consulted before an entry
// is committed.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voltrade/voltbot/internal/domain"
)

// systemPrompt frames the model as a reviewer, not a signal source: the
// numbers have already produced a candidate, the model only confirms or
// vetoes it.
const systemPrompt = `You are a sports trading assistant reviewing volatility trades before they are placed.
Judge the proposed entry against the game state and respond with only a JSON object:
{"analysis": "<one short paragraph>", "confidence": <0.0-1.0>, "recommendation": "proceed" or "reject", "size": <stake in dollars, 0 to keep the proposed stake>}`

// Client calls an OpenAI-compatible chat-completions endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient creates an advisory client. baseURL is the API root, e.g.
// "https://api.openai.com/v1"; any server speaking the same protocol works.
func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(apiKey),
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name identifies the advisor in logs.
func (c *Client) Name() string {
	return "openai"
}

// chatRequest is the chat-completions request envelope.
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatResponse is the chat-completions response envelope, reduced to the
// fields consumed here.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// opinionPayload is the JSON shape the system prompt requests from the model.
type opinionPayload struct {
	Analysis       string  `json:"analysis"`
	Confidence     float64 `json:"confidence"`
	Recommendation string  `json:"recommendation"`
	Size           float64 `json:"size"`
}

// Advise asks the model to confirm or veto one candidate entry. The caller
// bounds ctx. Any error, including an answer that is not the requested JSON,
// surfaces as an error so the entry is rejected rather than waved through.
func (c *Client) Advise(ctx context.Context, req domain.AdvisoryRequest) (domain.Opinion, error) {
	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: formatRequest(req)},
		},
		Temperature:    0.2,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return domain.Opinion{}, fmt.Errorf("openai: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return domain.Opinion{}, fmt.Errorf("openai: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.Opinion{}, fmt.Errorf("openai: request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Opinion{}, fmt.Errorf("openai: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Opinion{}, fmt.Errorf("openai: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return domain.Opinion{}, fmt.Errorf("openai: decode response: %w", err)
	}
	if chat.Error != nil {
		return domain.Opinion{}, fmt.Errorf("openai: api error: %s", chat.Error.Message)
	}
	if len(chat.Choices) == 0 {
		return domain.Opinion{}, fmt.Errorf("openai: empty response")
	}

	var payload opinionPayload
	if err := json.Unmarshal([]byte(chat.Choices[0].Message.Content), &payload); err != nil {
		return domain.Opinion{}, fmt.Errorf("openai: decode opinion: %w", err)
	}

	return domain.Opinion{
		Analysis:       payload.Analysis,
		Confidence:     payload.Confidence,
		Recommendation: strings.ToLower(strings.TrimSpace(payload.Recommendation)),
		Size:           payload.Size,
	}, nil
}

// formatRequest renders a candidate entry the way the alert texts do, so the
// model sees the same numbers an operator would.
func formatRequest(req domain.AdvisoryRequest) string {
	intent := req.Intent
	event := req.Event

	side := "Away"
	if intent.Line.SideIndex == 1 {
		side = "Home"
	}

	var b strings.Builder
	b.WriteString("PROPOSED VOLATILITY TRADE:\n")
	fmt.Fprintf(&b, "Matchup: %s (%s)\n", req.Matchup, intent.League)
	fmt.Fprintf(&b, "Market: %s %s %s, side %s, book %s\n",
		intent.Line.Scope, intent.Line.PeriodType, intent.Line.BetType, side, req.SourceName)
	fmt.Fprintf(&b, "Action: %s\n", strings.ToUpper(strings.ReplaceAll(string(intent.Direction), "_", " ")))
	fmt.Fprintf(&b, "Proposed Stake: $%.2f\n", intent.Size)
	if intent.Deviation != 0 {
		fmt.Fprintf(&b, "Vol Deviation: %+.1f%%\n", intent.Deviation)
	} else {
		b.WriteString("Vol Deviation: N/A (drift-based entry)\n")
	}
	fmt.Fprintf(&b, "Window: dispersion %.3f, drift %+.3f/min, %d samples, confidence %.2f\n",
		intent.Signal.Dispersion, intent.Signal.Drift, intent.Signal.Samples, intent.Signal.Confidence)
	fmt.Fprintf(&b, "Game State: %s, period %d, clock %s, score %d-%d\n",
		event.Status, event.Period, orNA(event.Clock),
		event.Teams[0].Score, event.Teams[1].Score)
	return b.String()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
