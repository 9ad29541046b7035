// Package openai is the default provider adapter: embeddings via
// /v1/embeddings and strict structured outputs via /v1/responses. It
// implements the library's Embedder and LLMAgent interfaces.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dbczarnota/graphforrag/internal/pkg/httpx"
	"github.com/dbczarnota/graphforrag/internal/platform/envutil"
	"github.com/dbczarnota/graphforrag/internal/platform/logger"
	"github.com/dbczarnota/graphforrag/usage"
)

const defaultBaseURL = "https://api.openai.com"

type Client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	fallbacks  []string // tried in order after model
	embedModel string
	embedDims  int
	httpClient *http.Client
	maxRetries int

	temperature        *float64
	disableTemperature bool
}

// NewClient builds a client from environment variables. OPENAI_API_KEY is
// required; everything else has defaults.
func NewClient() (*Client, error) {
	apiKey := envutil.Str("OPENAI_API_KEY", "")
	if apiKey == "" {
		return nil, fmt.Errorf("openai: missing OPENAI_API_KEY")
	}

	var fallbacks []string
	for _, m := range strings.Split(envutil.Str("OPENAI_FALLBACK_MODELS", ""), ",") {
		if m = strings.TrimSpace(m); m != "" {
			fallbacks = append(fallbacks, m)
		}
	}

	disableTemp := envutil.Bool("OPENAI_DISABLE_TEMPERATURE", false)
	var tempPtr *float64
	if !disableTemp {
		temp := envutil.Float("OPENAI_TEMPERATURE", 0.2)
		tempPtr = &temp
	}

	timeout := time.Duration(envutil.Int("OPENAI_TIMEOUT_SECONDS", 180)) * time.Second

	log, err := logger.NewFromEnv()
	if err != nil {
		log = logger.Nop()
	}

	return &Client{
		log:                log.With("service", "OpenAIClient"),
		baseURL:            strings.TrimRight(envutil.Str("OPENAI_BASE_URL", defaultBaseURL), "/"),
		apiKey:             apiKey,
		model:              envutil.Str("OPENAI_MODEL", "gpt-4o-mini"),
		fallbacks:          fallbacks,
		embedModel:         envutil.Str("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		embedDims:          envutil.Int("OPENAI_EMBED_DIMENSIONS", 1536),
		httpClient:         &http.Client{Timeout: timeout},
		maxRetries:         envutil.Int("OPENAI_MAX_RETRIES", 4),
		temperature:        tempPtr,
		disableTemperature: disableTemp,
	}, nil
}

// Dimensions is the width of the embedding vectors this client produces.
func (c *Client) Dimensions() int { return c.embedDims }

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string       { return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body) }
func (e *httpError) HTTPStatusCode() int { return e.StatusCode }

func (c *Client) doOnce(ctx context.Context, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *Client) do(ctx context.Context, path string, body, out any) error {
	backoff := 1 * time.Second
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		resp, raw, err := c.doOnce(ctx, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("openai: decode response: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}
		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			return err
		}
		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		time.Sleep(sleepFor)
		backoff *= 2
	}
	return fmt.Errorf("openai: unreachable retry loop")
}

// -------------------- Embeddings --------------------

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// Embed returns one vector per input, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, usage.Embedding, error) {
	var use usage.Embedding
	if len(texts) == 0 {
		return [][]float32{}, use, nil
	}

	clean := make([]string, len(texts))
	for i := range texts {
		s := strings.TrimSpace(texts[i])
		if s == "" {
			s = " "
		}
		clean[i] = s
	}

	var resp embeddingsResponse
	if err := c.do(ctx, "/v1/embeddings", embeddingsRequest{Model: c.embedModel, Input: clean}, &resp); err != nil {
		return nil, use, err
	}
	use.Tokens = resp.Usage.TotalTokens
	use.Calls = 1

	out := make([][]float32, len(clean))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			continue
		}
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		out[d.Index] = vec
	}
	for i := range out {
		if len(out[i]) == 0 {
			return nil, use, fmt.Errorf("openai: embeddings missing index %d: requested=%d returned=%d model=%s",
				i, len(clean), len(resp.Data), c.embedModel)
		}
	}
	return out, use, nil
}

// -------------------- Responses API (structured outputs) --------------------

type responsesRequest struct {
	Model string `json:"model"`

	Input []struct {
		Role    string `json:"role"`
		Content any    `json:"content"`
	} `json:"input"`

	Text struct {
		Format map[string]any `json:"format,omitempty"`
	} `json:"text,omitempty"`

	Temperature *float64 `json:"temperature,omitempty"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Refusal string `json:"refusal,omitempty"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage,omitempty"`
}

func extractOutputText(resp responsesResponse) string {
	var out strings.Builder
	for _, item := range resp.Output {
		if item.Type == "message" && item.Role == "assistant" {
			for _, c := range item.Content {
				if c.Type == "output_text" && c.Text != "" {
					out.WriteString(c.Text)
				}
			}
		}
	}
	return out.String()
}

func isUnsupportedTemperatureParam(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "temperature") {
		return false
	}
	for _, marker := range []string{"unsupported parameter", "unknown parameter", "not supported", "does not support", "only the default"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// GenerateJSON runs a strict json_schema structured-output call. On failure
// it walks the fallback model chain before giving up.
func (c *Client) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (json.RawMessage, usage.LLM, error) {
	var use usage.LLM
	if schemaName == "" {
		return nil, use, errors.New("openai: schemaName required")
	}
	if schema == nil {
		return nil, use, errors.New("openai: schema required")
	}

	models := append([]string{c.model}, c.fallbacks...)
	var lastErr error
	for i, model := range models {
		raw, callUse, err := c.generateJSONWithModel(ctx, model, system, user, schemaName, schema)
		use.Add(callUse)
		if err == nil {
			return raw, use, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if i < len(models)-1 {
			c.log.Warn("model failed, trying fallback",
				"model", model, "next", models[i+1], "error", err.Error())
		}
	}
	return nil, use, lastErr
}

func (c *Client) generateJSONWithModel(ctx context.Context, model, system, user, schemaName string, schema map[string]any) (json.RawMessage, usage.LLM, error) {
	var use usage.LLM
	req := responsesRequest{Model: model}
	req.Input = []struct {
		Role    string `json:"role"`
		Content any    `json:"content"`
	}{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
	if !c.disableTemperature {
		req.Temperature = c.temperature
	}
	req.Text.Format = map[string]any{
		"type":   "json_schema",
		"name":   schemaName,
		"schema": schema,
		"strict": true,
	}

	var resp responsesResponse
	err := c.do(ctx, "/v1/responses", &req, &resp)
	if err != nil && req.Temperature != nil && isUnsupportedTemperatureParam(err) {
		req.Temperature = nil
		err = c.do(ctx, "/v1/responses", &req, &resp)
	}
	if err != nil {
		return nil, use, err
	}

	use = usage.LLM{
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		Calls:            1,
	}
	if resp.Refusal != "" {
		return nil, use, fmt.Errorf("openai: model refused: %s", resp.Refusal)
	}
	text := extractOutputText(resp)
	if strings.TrimSpace(text) == "" {
		return nil, use, fmt.Errorf("openai: no output_text in response")
	}
	if !json.Valid([]byte(text)) {
		return nil, use, fmt.Errorf("openai: model output is not valid JSON: %s", text)
	}
	return json.RawMessage(text), use, nil
}
