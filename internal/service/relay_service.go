package service

import (
	"context"
	"errors"

	"careerkit-go/internal/config"
	"careerkit-go/pkg/llm"
	"careerkit-go/pkg/log"
)

// NoContentText 在上游返回成功但没有文本时代替空串返回。
const NoContentText = "HF response had no message content."

var (
	// ErrMissingPrompts 表示 systemPrompt 或 userPrompt 为空。
	ErrMissingPrompts = errors.New("missing prompts")
	// ErrUpstreamNotConfigured 表示没有配置上游密钥。
	ErrUpstreamNotConfigured = errors.New("upstream api key not configured")
)

// RelayService 把一对提示词转发给上游模型。
type RelayService interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

type relayService struct {
	cfg       config.LLMConfig
	llmClient llm.Client
}

// NewRelayService 创建一个新的 RelayService 实例。
func NewRelayService(cfg config.LLMConfig, llmClient llm.Client) RelayService {
	return &relayService{cfg: cfg, llmClient: llmClient}
}

// Generate 恰好发送 system 和 user 两条消息，使用固定的生成参数。
// 上游非 2xx 时返回 *llm.UpstreamError，由调用方镜像其状态码。
func (s *relayService) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if systemPrompt == "" || userPrompt == "" {
		return "", ErrMissingPrompts
	}
	if !s.cfg.Configured() {
		return "", ErrUpstreamNotConfigured
	}

	temperature := s.cfg.Generation.Temperature
	maxTokens := s.cfg.Generation.MaxTokens
	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}
	text, err := s.llmClient.Chat(ctx, messages, &llm.GenerationParams{
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		var upErr *llm.UpstreamError
		if errors.As(err, &upErr) {
			log.Errorf("[RelayService] HF HTTP error: %d %s", upErr.StatusCode, string(upErr.Body))
		} else {
			log.Errorf("[RelayService] Server error calling HF: %v", err)
		}
		return "", err
	}
	if text == "" {
		return NoContentText, nil
	}
	return text, nil
}
