package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aindrajaya/ask-football/domain"
	"github.com/aindrajaya/ask-football/prompt"
	"github.com/valyala/fasthttp"
)

const (
	DefaultPerplexityEndpoint = "https://api.perplexity.ai/chat/completions"
	DefaultPerplexityModel    = "sonar-pro"
	perplexityMaxTokens       = 100
	perplexityTemperature     = 0.7
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Perplexity is a chat-completions backend: the channel persona goes in the
// system turn and the user's message in its own turn.
type Perplexity struct {
	client   *fasthttp.Client
	endpoint string
	apiKey   string
	model    string
	builder  prompt.Builder
}

func NewPerplexity(apiKey, endpoint, model string, builder prompt.Builder) *Perplexity {
	if endpoint == "" {
		endpoint = DefaultPerplexityEndpoint
	}
	if model == "" {
		model = DefaultPerplexityModel
	}
	return &Perplexity{
		client:   &fasthttp.Client{Name: "ask-football"},
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		builder:  builder,
	}
}

func (p *Perplexity) Generate(ctx context.Context, current string, _ []domain.Message, channel domain.ChannelID) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: p.builder.System(channel)},
			{Role: "user", Content: current},
		},
		MaxTokens:   perplexityMaxTokens,
		Temperature: perplexityTemperature,
	})
	if err != nil {
		return "", err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(p.endpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+p.apiKey)
	req.SetBody(body)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(30 * time.Second)
	}
	if err := p.client.DoDeadline(req, resp, deadline); err != nil {
		return "", fmt.Errorf("perplexity request: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return "", fmt.Errorf("perplexity request: status %d: %s", resp.StatusCode(), truncate(resp.Body(), 200))
	}

	var res chatResponse
	if err := json.Unmarshal(resp.Body(), &res); err != nil {
		return "", fmt.Errorf("perplexity response: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", nil
	}
	return res.Choices[0].Message.Content, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
