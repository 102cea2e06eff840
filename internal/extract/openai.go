package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cuongbtq/cv-forge/internal/domain"
	"github.com/google/uuid"
)

// Request is one extraction call.
type Request struct {
	Text       string
	Mode       string // domain.ModeAuthor or domain.ModeParse
	Language   string
	SchemaName string
}

// Extractor turns free text into a structured document.
type Extractor interface {
	Extract(ctx context.Context, req Request) (domain.Document, error)
}

// Config for the OpenAI client.
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	Timeout           time.Duration
	AuthorTemperature float32
	ParseTemperature  float32
}

// Client implements Extractor over the chat-completions endpoint.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates an OpenAI client; Timeout bounds every call.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Extract calls the model and validates its reply against the request's schema.
// Every failure, timeouts included, is an extraction-class StageError.
func (c *Client) Extract(ctx context.Context, req Request) (domain.Document, error) {
	doc, err := c.extract(ctx, req)
	if err != nil {
		return nil, domain.NewStageError(domain.ClassExtraction, domain.StageExtraction, err)
	}
	return doc, nil
}

func (c *Client) extract(ctx context.Context, req Request) (domain.Document, error) {
	rid := uuid.NewString()
	start := time.Now()

	schema, err := SchemaFor(req.SchemaName)
	if err != nil {
		return nil, err
	}

	system, user, temperature := c.prompts(req)
	c.logger.Info("llm.extract.start",
		slog.String("req_id", rid),
		slog.String("model", c.cfg.Model),
		slog.String("mode", req.Mode),
		slog.Float64("temp", float64(temperature)),
		slog.Int("text_len", len(req.Text)),
	)

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("openai call timed out after %s: %w", c.cfg.Timeout, err)
		}
		c.logger.Error("llm.extract.http_error",
			slog.String("req_id", rid),
			slog.Any("error", err),
			slog.Int64("elapsed_ms", time.Since(start).Milliseconds()),
		)
		return nil, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return nil, fmt.Errorf("no choices in openai response")
	}
	content := []byte(strings.TrimSpace(cc.Choices[0].Message.Content))

	if err := Validate(req.SchemaName, content); err != nil {
		c.logger.Error("llm.extract.schema_validation_failed",
			slog.String("req_id", rid),
			slog.Any("error", err),
			slog.Int64("elapsed_ms", time.Since(start).Milliseconds()),
		)
		return nil, err
	}

	var doc domain.Document
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}

	c.logger.Info("llm.extract.ok",
		slog.String("req_id", rid),
		slog.Int("fields", len(doc)),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return doc, nil
}

func (c *Client) prompts(req Request) (system, user string, temperature float32) {
	if req.Mode == domain.ModeParse {
		return parseSystemPrompt(), parseUserPrompt(req.Text), c.cfg.ParseTemperature
	}
	return authorSystemPrompt(req.Language), req.Text, c.cfg.AuthorTemperature
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai http error: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.Warn("openai response body close error", slog.Any("error", err))
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read openai response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("openai status %d: %s", resp.StatusCode, domain.Truncate(string(raw), 500))
	}
	return raw, nil
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
