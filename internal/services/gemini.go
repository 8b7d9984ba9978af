package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/desertthunder/moodmix/internal/metrics"
	"github.com/desertthunder/moodmix/internal/shared"
	"github.com/goccy/go-json"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com"
	DefaultGeminiModel = "gemini-2.5-pro"
)

// GeminiClient requests completions from the Gemini generateContent endpoint.
type GeminiClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewGeminiClient builds a client from config. The model and base URL fall back to defaults when empty.
func NewGeminiClient(cfg shared.GeminiConfig, httpClient *http.Client) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: missing gemini api_key", shared.ErrMissingCredentials)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = geminiBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}

	return &GeminiClient{apiKey: cfg.APIKey, model: model, baseURL: baseURL, httpClient: httpClient}, nil
}

func (g *GeminiClient) Name() string {
	return "Gemini"
}

// Model returns the configured model name.
func (g *GeminiClient) Model() string {
	return g.model
}

type geminiPart struct {
	Text    string `json:"text"`
	Thought bool   `json:"thought,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

// Recommend sends prompt as a single user turn and returns the text of the first candidate.
// Long replies may be split across parts; their text is joined in order and thought parts are skipped.
func (g *GeminiClient) Recommend(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, url.PathEscape(g.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		metrics.RecordUpstreamRequest("gemini", "generate", 0, time.Since(start))
		return "", fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()
	metrics.RecordUpstreamRequest("gemini", "generate", resp.StatusCode, time.Since(start))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", shared.ErrAPIRequest, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return "", &StatusError{Service: g.Name(), StatusCode: resp.StatusCode, Body: string(body)}
	}

	var data geminiResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return "", fmt.Errorf("%w: failed to decode gemini response: %v", shared.ErrUnexpectedResponse, err)
	}

	if len(data.Candidates) == 0 || len(data.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: gemini returned no candidates", shared.ErrUnexpectedResponse)
	}

	var b strings.Builder
	for _, part := range data.Candidates[0].Content.Parts {
		if part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}

	text := b.String()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: gemini returned empty text (finish reason %q)",
			shared.ErrUnexpectedResponse, data.Candidates[0].FinishReason)
	}
	return text, nil
}
