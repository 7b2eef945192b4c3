package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// openAIFamily implements Provider for OpenAI-compatible chat-completions
// APIs. Both "openai" and "deepseek" variants are this same adapter; they
// differ only in their default base URL (§6.3 groups them explicitly).
type openAIFamily struct {
	name   string
	client *http.Client
}

// NewOpenAI constructs the "openai" variant adapter.
func NewOpenAI() Provider { return &openAIFamily{name: "openai", client: &http.Client{}} }

// NewDeepSeek constructs the "deepseek" variant adapter (same wire format
// as OpenAI, different default base URL supplied via Config.BaseURL).
func NewDeepSeek() Provider { return &openAIFamily{name: "deepseek", client: &http.Client{}} }

type openAIModelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (p *openAIFamily) ListModels(ctx context.Context, cfg Config) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	base := strings.TrimRight(cfg.BaseURL, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build models request: %w", p.name, err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	body, err := p.do(req)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var parsed openAIModelsResponse
	if err := json.NewDecoder(body).Decode(&parsed); err != nil {
		return nil, &ProtocolError{Detail: fmt.Sprintf("%s: decode models response: %v", p.name, err)}
	}

	models := make([]string, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		models = append(models, m.ID)
	}
	return models, nil
}

type openAIChatRequest struct {
	Model          string                 `json:"model"`
	Messages       []openAIMessage        `json:"messages"`
	Temperature    *float64               `json:"temperature,omitempty"`
	ResponseFormat map[string]string      `json:"response_format,omitempty"`
	Stop           []string               `json:"stop,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (p *openAIFamily) Generate(ctx context.Context, cfg Config, messages []Message, opts GenerateOptions) (*GenerateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 90*time.Second)
	defer cancel()

	wireMsgs := make([]openAIMessage, len(messages))
	for i, m := range messages {
		wireMsgs[i] = openAIMessage{Role: m.Role, Content: m.Content}
	}

	body := openAIChatRequest{Model: cfg.ModelName, Messages: wireMsgs, Stop: opts.Stop}
	if opts.Temperature != 0 {
		t := opts.Temperature
		body.Temperature = &t
	}
	if opts.ResponseFormat == FormatJSON {
		body.ResponseFormat = map[string]string{"type": "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", p.name, err)
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: build chat request: %w", p.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	respBody, err := p.do(req)
	if err != nil {
		return nil, err
	}
	defer respBody.Close()

	raw, err := io.ReadAll(respBody)
	if err != nil {
		return nil, &TransientError{Cause: fmt.Errorf("%s: read response: %w", p.name, err)}
	}

	var parsed openAIChatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &ProtocolError{Detail: fmt.Sprintf("%s: decode chat response: %v", p.name, err)}
	}
	if len(parsed.Choices) == 0 {
		return nil, &ProtocolError{Detail: p.name + ": response has no choices"}
	}

	in, out := parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens
	return &GenerateResult{
		Text: parsed.Choices[0].Message.Content,
		TokenIn: &in, TokenOut: &out,
		Raw: string(raw),
	}, nil
}

// do executes req, classifying the result per §4.2/§7: 2xx returns the
// body for the caller to decode, 4xx becomes ClientError, everything else
// (5xx, timeout, connection failure) becomes TransientError.
func (p *openAIFamily) do(req *http.Request) (io.ReadCloser, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &TransientError{Cause: fmt.Errorf("%s: request failed: %w", p.name, err)}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.Body, nil
	}

	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, &ClientError{Status: resp.StatusCode, BodyExcerpt: excerpt(raw, 512)}
	}
	return nil, &TransientError{Cause: fmt.Errorf("%s: http %d: %s", p.name, resp.StatusCode, excerpt(raw, 512))}
}
