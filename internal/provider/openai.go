package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultHTTPTimeout = 120 * time.Second

// OpenAICompatible talks to any OpenAI-compatible chat-completions
// endpoint (OpenAI itself, SiliconFlow, Volcengine Ark, etc.).
type OpenAICompatible struct {
	name    string
	apiBase string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

type Config struct {
	Name    string // platform label used in logs
	APIBase string // e.g. https://api.openai.com/v1/
	APIKey  string
	Logger  *slog.Logger
}

func NewOpenAICompatible(cfg Config) *OpenAICompatible {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.openai.com/v1/"
	}
	if !strings.HasSuffix(cfg.APIBase, "/") {
		cfg.APIBase += "/"
	}
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &OpenAICompatible{
		name:    cfg.Name,
		apiBase: cfg.APIBase,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: defaultHTTPTimeout},
		logger:  cfg.Logger,
	}
}

func (o *OpenAICompatible) Name() string { return o.name }

// Complete posts the payload to chat/completions. Extra fields are
// merged into the top level of the JSON body before sending.
func (o *OpenAICompatible) Complete(ctx context.Context, p Payload) (*Completion, error) {
	body, err := encodeBody(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	resp, err := doWithRetry(ctx, o.client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.apiBase+"chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
		return req, nil
	}, o.logger)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", o.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s returned %d: %s", o.name, resp.StatusCode, string(respBody))
	}

	var completion Completion
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", o.name, err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", o.name)
	}
	return &completion, nil
}

// encodeBody marshals the payload and splices Extra into the top-level
// object.
func encodeBody(p Payload) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	if len(p.Extra) == 0 {
		return raw, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	for k, v := range p.Extra {
		m[k] = v
	}
	return json.Marshal(m)
}
