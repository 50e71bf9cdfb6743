package echo

import (
	"context"
	"strings"
)

// Client is the offline provider used when no API is configured. It never
// takes an action, so echo-only games end at the round cap.
type Client struct{}

func New() *Client { return &Client{} }

func (c *Client) Complete(ctx context.Context, model string, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, model, "", prompt)
}

// CompleteWithSystem answers with the first line of the prompt, which the
// agent prompt uses as its phase header.
func (c *Client) CompleteWithSystem(ctx context.Context, model string, systemPrompt string, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	head, _, _ := strings.Cut(strings.TrimSpace(prompt), "\n")
	if head == "" {
		head = "?"
	}
	return "[" + head + "] is thinking…", nil
}

func (c *Client) Models(ctx context.Context) ([]string, error) {
	return []string{"echo"}, nil
}
