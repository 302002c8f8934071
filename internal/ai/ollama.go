package ai

import (
	"context"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/errtrack/internal/config"
	"github.com/kiranshivaraju/errtrack/pkg/models"
)

// OllamaProvider uses Ollama's native /api/chat endpoint without streaming.
type OllamaProvider struct {
	cfg    config.OllamaConfig
	client *http.Client
}

func NewOllamaProvider(cfg config.OllamaConfig, client *http.Client) *OllamaProvider {
	return &OllamaProvider{cfg: cfg, client: client}
}

func (p *OllamaProvider) Name() string { return config.ProviderOllama }

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  ollamaOptions `json:"options"`
}

type ollamaResponse struct {
	Message chatMessage `json:"message"`
}

func (p *OllamaProvider) Complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	body := ollamaRequest{
		Model: p.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.Prompt},
		},
		Options: ollamaOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens},
	}

	var resp ollamaResponse
	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/api/chat"
	if err := postJSON(ctx, p.client, url, nil, body, &resp); err != nil {
		return "", err
	}
	return nonEmpty(resp.Message.Content)
}

var _ models.AIProvider = (*OllamaProvider)(nil)
