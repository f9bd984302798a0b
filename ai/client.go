// Package ai asks a chat model which available option label is closest to
// an expected one. The answer is a hint for the operator only.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const DefaultModel = "gpt-4o-mini"

const systemPrompt = "You match form option labels. Reply with exactly one label copied from the list, or NONE."

type Client struct {
	client *openai.Client
	model  string
}

func NewClient(apiKey, model string) *Client {
	return NewClientWithConfig(openai.DefaultConfig(apiKey), model)
}

// NewClientWithConfig allows a custom base URL, e.g. a proxy or a test server.
func NewClientWithConfig(cfg openai.ClientConfig, model string) *Client {
	if model == "" {
		model = DefaultModel
	}

	return &Client{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// SuggestLabel returns the label from labels the model considers closest
// to expected, or "" when the model's reply is not one of them.
func (c *Client) SuggestLabel(ctx context.Context, expected string, labels []string) (string, error) {
	if len(labels) == 0 {
		return "", nil
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(expected, labels)},
		},
		Temperature: 0,
		MaxTokens:   50,
	})
	if err != nil {
		return "", fmt.Errorf("failed to suggest label: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("failed to suggest label: empty response")
	}

	return pickLabel(resp.Choices[0].Message.Content, labels), nil
}

func buildPrompt(expected string, labels []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Expected label: %q\n\nAvailable labels:\n", expected)
	for _, l := range labels {
		fmt.Fprintf(&sb, "- %s\n", l)
	}
	sb.WriteString("\nWhich available label did the author most likely mean?")
	return sb.String()
}

// pickLabel accepts the reply only if it names one of labels exactly,
// ignoring surrounding quotes and whitespace.
func pickLabel(reply string, labels []string) string {
	reply = strings.Trim(strings.TrimSpace(reply), "\"'`")
	for _, l := range labels {
		if l == reply {
			return l
		}
	}
	return ""
}
