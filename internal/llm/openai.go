package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/embedkit/ragchat/internal/domain"
	"github.com/embedkit/ragchat/internal/metrics"
)

// quotaMarker appears in the 429 body when the account has no quota left,
// as opposed to a transient rate limit.
const quotaMarker = "insufficient_quota"

// OpenAIProvider calls an OpenAI-compatible chat completions API.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	hint        *retryHint
	logger      *zap.Logger
}

// Config holds the chat provider settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Logger      *zap.Logger
}

// NewOpenAIProvider creates a chat provider against an OpenAI-compatible API.
func NewOpenAIProvider(cfg *Config) *OpenAIProvider {
	hint := &retryHint{}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	// go-openai drops response headers when it builds an error, so a
	// recording transport captures the Retry-After hint out of band.
	clientCfg.HTTPClient = &http.Client{
		Transport: &retryAfterTransport{base: http.DefaultTransport, hint: hint, now: time.Now},
	}

	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		hint:        hint,
		logger:      cfg.Logger,
	}
}

// Enabled reports true; a provider without an API key is constructed as
// Disabled instead (composition-root decision, not runtime inspection).
func (p *OpenAIProvider) Enabled() bool { return true }

// Generate performs a single non-streaming completion call.
func (p *OpenAIProvider) Generate(ctx context.Context, msgs []domain.Turn) (string, error) {
	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, p.request(msgs, false))
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(p.model, "error").Inc()
		return "", p.classify(err)
	}
	if len(resp.Choices) == 0 {
		metrics.LLMRequestsTotal.WithLabelValues(p.model, "error").Inc()
		return "", fmt.Errorf("empty completion response: %w", domain.ErrProviderError)
	}

	metrics.LLMRequestsTotal.WithLabelValues(p.model, "success").Inc()
	metrics.LLMRequestDuration.WithLabelValues(p.model).Observe(time.Since(start).Seconds())
	return resp.Choices[0].Message.Content, nil
}

// GenerateStream performs a streaming completion call, emitting each
// delta fragment in arrival order.
func (p *OpenAIProvider) GenerateStream(ctx context.Context, msgs []domain.Turn, emit func(string)) error {
	start := time.Now()
	stream, err := p.client.CreateChatCompletionStream(ctx, p.request(msgs, true))
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(p.model, "error").Inc()
		return p.classify(err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			metrics.LLMRequestsTotal.WithLabelValues(p.model, "error").Inc()
			return p.classify(err)
		}
		if len(resp.Choices) > 0 && resp.Choices[0].Delta.Content != "" {
			emit(resp.Choices[0].Delta.Content)
		}
	}

	metrics.LLMRequestsTotal.WithLabelValues(p.model, "success").Inc()
	metrics.LLMRequestDuration.WithLabelValues(p.model).Observe(time.Since(start).Seconds())
	return nil
}

func (p *OpenAIProvider) request(msgs []domain.Turn, stream bool) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
		Stream:      stream,
	}
}

// classify maps a go-openai error onto the domain taxonomy: 429 with the
// quota marker is terminal quota exhaustion, any other 429 is a retryable
// RateLimitError carrying the captured Retry-After hint, everything else
// is a hard provider error.
func (p *OpenAIProvider) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 429 {
			if isQuotaExhausted(fmt.Sprint(apiErr.Code), apiErr.Type, apiErr.Message) {
				return fmt.Errorf("%s: %w", apiErr.Message, domain.ErrQuotaExceeded)
			}
			return &RateLimitError{RetryAfter: p.hint.take(), Err: err}
		}
		return fmt.Errorf("completion API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, domain.ErrProviderError)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == 429 {
			if strings.Contains(string(reqErr.Body), quotaMarker) {
				return fmt.Errorf("quota exhausted: %w", domain.ErrQuotaExceeded)
			}
			return &RateLimitError{RetryAfter: p.hint.take(), Err: err}
		}
		return fmt.Errorf("completion API error %d: %w", reqErr.HTTPStatusCode, domain.ErrProviderError)
	}

	return fmt.Errorf("completion request failed: %v: %w", err, domain.ErrProviderError)
}

func isQuotaExhausted(code, errType, message string) bool {
	return strings.Contains(code, quotaMarker) ||
		strings.Contains(errType, quotaMarker) ||
		strings.Contains(message, quotaMarker)
}
