// Package aiclient calls the external chat-completions endpoint the Command
// Synthesizer uses to turn a file's probe data and host capabilities into an
// ffmpeg-equivalent invocation.
package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/tinkeshwar/videopipeline/internal/pipeline"
)

const defaultEndpoint = "https://api.openai.com/v1/chat/completions"

// Client wraps retryablehttp.Client. RetryMax is pinned to 0: spec.md's
// contract is "on any failure, log and leave the row unchanged (it will be
// retried on the next tick)" — retrying the same job within the same
// Synthesizer call would duplicate that built-in next-tick retry. The
// client is kept for its consistent timeout and request/response logging
// hooks rather than its own backoff.
type Client struct {
	httpClient *retryablehttp.Client
	apiKey     string
	endpoint   string
}

// New builds a Client for the given API key. endpoint defaults to OpenAI's
// chat-completions URL when empty.
func New(apiKey, endpoint string) *Client {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = 0
	rc.Logger = nil
	return &Client{httpClient: rc, apiKey: apiKey, endpoint: endpoint}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// Complete issues the single chat-completions call described in spec.md §6:
// {model, messages:[system, user], temperature:0.3}, returning
// choices[0].message.content.
func (c *Client) Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	reqBody := chatRequest{
		Model: model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0.3,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", pipeline.ModelFailed("encode request", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", pipeline.ModelFailed("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", pipeline.ModelFailed("call model endpoint", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", pipeline.ModelFailed("read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", pipeline.ModelFailed(fmt.Sprintf("model endpoint returned %d: %s", resp.StatusCode, string(body)), nil)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", pipeline.ModelFailed("decode response", err)
	}
	if len(parsed.Choices) == 0 {
		return "", pipeline.ModelFailed("empty choices in response", nil)
	}
	return parsed.Choices[0].Message.Content, nil
}

// Normalize strips surrounding markdown code fences, keeps text from the
// first occurrence of "ffmpeg" onward, and trims whitespace, per spec.md
// §4.5 step 3. Returns an error if the result is empty.
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```bash")
	s = strings.TrimPrefix(s, "```sh")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	idx := strings.Index(s, "ffmpeg")
	if idx < 0 {
		return "", pipeline.ModelFailed("response does not contain ffmpeg invocation", nil)
	}
	s = strings.TrimSpace(s[idx:])
	// Collapse to a single line: spec.md requires a single-line invocation.
	s = strings.Join(strings.Fields(s), " ")

	if s == "" {
		return "", pipeline.ModelFailed("normalized response is empty", nil)
	}
	return s, nil
}
