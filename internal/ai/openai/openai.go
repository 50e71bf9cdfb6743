package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kiliankoe/gptmafia/internal/ai"
)

// Client talks to any OpenAI-compatible chat completions API, including
// OpenRouter when BaseURL points there.
type Client struct {
	APIKey      string
	BaseURL     string
	SiteURL     string // OpenRouter HTTP-Referer
	AppName     string // OpenRouter X-Title
	Temperature float64
	MaxTokens   int
	http        *http.Client
}

type Option func(*Client)

// WithOpenRouter sets the optional OpenRouter attribution headers.
func WithOpenRouter(siteURL, appName string) Option {
	return func(c *Client) {
		c.SiteURL = siteURL
		c.AppName = appName
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func New(apiKey, baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	c := &Client{
		APIKey:      apiKey,
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Temperature: 0.7,
		MaxTokens:   1024,
		http:        &http.Client{Timeout: 3 * time.Minute},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Complete(ctx context.Context, model string, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, model, "", prompt)
}

func (c *Client) CompleteWithSystem(ctx context.Context, model string, systemPrompt string, prompt string) (string, error) {
	if c.APIKey == "" {
		return "", errors.New("missing OPENAI_API_KEY")
	}
	messages := []map[string]string{}
	if systemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": systemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": prompt})
	payload := map[string]any{
		"model":       model,
		"messages":    messages,
		"temperature": c.Temperature,
		"max_tokens":  c.MaxTokens,
	}
	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/v1/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	c.headers(req)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", &ai.StatusError{Provider: "openai", Code: resp.StatusCode}
	}
	var out struct {
		Choices []choice `json:"choices"`
		// some OpenRouter upstreams answer in these instead
		OutputText string `json:"output_text"`
		Response   string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	for _, s := range []string{firstChoice(out.Choices), out.OutputText, out.Response} {
		if s = strings.TrimSpace(s); s != "" && s != "..." {
			return s, nil
		}
	}
	return "", errors.New("no choices")
}

type choice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

func firstChoice(choices []choice) string {
	if len(choices) == 0 {
		return ""
	}
	return choices[0].Message.Content
}

// Models lists the model ids the API exposes.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.BaseURL+"/v1/models", nil)
	if err != nil {
		return nil, err
	}
	c.headers(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, &ai.StatusError{Provider: "openai", Code: resp.StatusCode}
	}
	var out struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(out.Data))
	for _, m := range out.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (c *Client) headers(req *http.Request) {
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	if c.SiteURL != "" {
		req.Header.Set("HTTP-Referer", c.SiteURL)
	}
	if c.AppName != "" {
		req.Header.Set("X-Title", c.AppName)
	}
}
