package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/RitamPal26/ScribeAI/internal/protocol"
)

const systemPrompt = `You summarize meeting transcripts. Respond with a JSON object containing exactly these keys: "summary" (a short paragraph), "keyPoints" (array of strings), "actionItems" (array of strings), "decisions" (array of strings). Use empty arrays when nothing applies.`

// Config contains summarization client configuration
type Config struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client generates structured summaries from full transcripts using the
// OpenAI chat completion API.
type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
}

// NewClient creates a new summarization client
func NewClient(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}

	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	return &Client{
		api:     openai.NewClient(config.APIKey),
		model:   config.Model,
		timeout: config.Timeout,
	}, nil
}

// Summarize produces a structured summary for a session's full transcript.
// An empty transcript yields an empty summary without calling the API.
func (c *Client) Summarize(ctx context.Context, fullText string) (*protocol.SummaryPayload, error) {
	if strings.TrimSpace(fullText) == "" {
		return &protocol.SummaryPayload{
			KeyPoints:   []string{},
			ActionItems: []string{},
			Decisions:   []string{},
		}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fullText},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("summarization request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("summarization returned no choices")
	}

	var payload protocol.SummaryPayload
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse summary JSON: %w", err)
	}

	if payload.KeyPoints == nil {
		payload.KeyPoints = []string{}
	}
	if payload.ActionItems == nil {
		payload.ActionItems = []string{}
	}
	if payload.Decisions == nil {
		payload.Decisions = []string{}
	}

	return &payload, nil
}
