package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// geminiProvider implements Provider for the Gemini API (§6.3). The API
// key travels as a query parameter rather than a header, per Gemini's wire
// contract; it is never logged.
type geminiProvider struct {
	client *http.Client
}

// NewGemini constructs the "gemini" variant adapter.
func NewGemini() Provider { return &geminiProvider{client: &http.Client{}} }

type geminiModelsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func (p *geminiProvider) ListModels(ctx context.Context, cfg Config) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	base := strings.TrimRight(cfg.BaseURL, "/")
	reqURL := fmt.Sprintf("%s/v1beta/models?key=%s", base, url.QueryEscape(cfg.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini: build models request: %w", err)
	}

	body, err := p.do(req)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var parsed geminiModelsResponse
	if err := json.NewDecoder(body).Decode(&parsed); err != nil {
		return nil, &ProtocolError{Detail: fmt.Sprintf("gemini: decode models response: %v", err)}
	}

	models := make([]string, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		models = append(models, m.Name)
	}
	return models, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerateRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// toGeminiContents translates the provider-neutral message list to
// Gemini's {role: "user"|"model", parts} shape. Gemini has no "system"
// role for chat turns, so a leading system message is folded into the
// first user turn.
func toGeminiContents(messages []Message) []geminiContent {
	var systemPreamble string
	var rest []Message
	for _, m := range messages {
		if m.Role == "system" && systemPreamble == "" {
			systemPreamble = m.Content
			continue
		}
		rest = append(rest, m)
	}

	contents := make([]geminiContent, 0, len(rest))
	for i, m := range rest {
		role := "user"
		if m.Role == "assistant" || m.Role == "model" {
			role = "model"
		}
		text := m.Content
		if i == 0 && systemPreamble != "" && role == "user" {
			text = systemPreamble + "\n\n" + text
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: text}}})
	}
	return contents
}

func (p *geminiProvider) Generate(ctx context.Context, cfg Config, messages []Message, opts GenerateOptions) (*GenerateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 90*time.Second)
	defer cancel()

	payload, err := json.Marshal(geminiGenerateRequest{Contents: toGeminiContents(messages)})
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal request: %w", err)
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	reqURL := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", base, cfg.ModelName, url.QueryEscape(cfg.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("gemini: build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	respBody, err := p.do(req)
	if err != nil {
		return nil, err
	}
	defer respBody.Close()

	raw, err := io.ReadAll(respBody)
	if err != nil {
		return nil, &TransientError{Cause: fmt.Errorf("gemini: read response: %w", err)}
	}

	var parsed geminiGenerateResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &ProtocolError{Detail: fmt.Sprintf("gemini: decode generate response: %v", err)}
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return nil, &ProtocolError{Detail: "gemini: response has no candidate text"}
	}

	in, out := parsed.UsageMetadata.PromptTokenCount, parsed.UsageMetadata.CandidatesTokenCount
	return &GenerateResult{
		Text: parsed.Candidates[0].Content.Parts[0].Text,
		TokenIn: &in, TokenOut: &out,
		Raw: string(raw),
	}, nil
}

func (p *geminiProvider) do(req *http.Request) (io.ReadCloser, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &TransientError{Cause: fmt.Errorf("gemini: request failed: %w", err)}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.Body, nil
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, &ClientError{Status: resp.StatusCode, BodyExcerpt: excerpt(raw, 512)}
	}
	return nil, &TransientError{Cause: fmt.Errorf("gemini: http %d: %s", resp.StatusCode, excerpt(raw, 512))}
}
