package outline

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"deckgen-api/internal/application/port"
	"deckgen-api/internal/application/provider"
	"deckgen-api/internal/config"
	"deckgen-api/internal/domain/entity"
	apperrors "deckgen-api/pkg/errors"
	"deckgen-api/pkg/logger"
	"deckgen-api/pkg/metrics"
)

// Generator 大纲生成器
// 每次生成都重新解析当前提供商配置，保证配置切换立即生效。
type Generator struct {
	providers *provider.Service
	factory   port.ChatModelFactory
	llmCfg    *config.LLMConfig
}

// NewGenerator 创建大纲生成器
func NewGenerator(providers *provider.Service, factory port.ChatModelFactory, cfg *config.Config) *Generator {
	return &Generator{
		providers: providers,
		factory:   factory,
		llmCfg:    &cfg.LLM,
	}
}

// Generate 根据输入内容生成结构化大纲
func (g *Generator) Generate(ctx context.Context, content string, settings entity.ProjectSettings) (*entity.Outline, error) {
	cfg, err := g.providers.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	chatModel, err := g.factory.Build(ctx, cfg)
	if err != nil {
		metrics.OutlineGenerationTotal.WithLabelValues(cfg.Provider, "error").Inc()
		return nil, apperrors.Wrap(err, apperrors.CodeProviderError, "failed to create chat model")
	}

	ctx, cancel := context.WithTimeout(ctx, g.llmCfg.RequestTimeout)
	defer cancel()

	prompt := BuildPrompt(content, settings)
	start := time.Now()
	resp, err := chatModel.Generate(ctx,
		[]*schema.Message{schema.UserMessage(prompt)},
		model.WithMaxTokens(g.llmCfg.MaxTokens),
		model.WithTemperature(float32(g.llmCfg.Temperature)),
	)
	elapsed := time.Since(start)
	metrics.LLMCallDuration.WithLabelValues(cfg.Provider, cfg.Model).Observe(elapsed.Seconds())

	if err != nil {
		status := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			status = "timeout"
		}
		metrics.LLMCallTotal.WithLabelValues(cfg.Provider, cfg.Model, status).Inc()
		metrics.OutlineGenerationTotal.WithLabelValues(cfg.Provider, status).Inc()
		logger.Error(ctx, "outline generation failed", err,
			"provider", cfg.Provider,
			"model", cfg.Model,
			"elapsed", elapsed,
		)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.ErrTimeout.WithDetail("outline generation timed out").WithError(err)
		}
		return nil, apperrors.ErrProviderError.WithDetail("outline generation request failed").WithError(err)
	}
	metrics.LLMCallTotal.WithLabelValues(cfg.Provider, cfg.Model, "success").Inc()
	if resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil {
		metrics.LLMTokensUsed.WithLabelValues(cfg.Provider, cfg.Model, "prompt").Add(float64(resp.ResponseMeta.Usage.PromptTokens))
		metrics.LLMTokensUsed.WithLabelValues(cfg.Provider, cfg.Model, "completion").Add(float64(resp.ResponseMeta.Usage.CompletionTokens))
	}

	result, err := Parse(resp.Content)
	if err != nil {
		metrics.OutlineGenerationTotal.WithLabelValues(cfg.Provider, "parse_error").Inc()
		logger.Warn(ctx, "outline parse failed", "provider", cfg.Provider, "output_len", len(resp.Content))
		return nil, err
	}

	result.Provider = cfg.Provider
	result.Model = cfg.Model

	metrics.OutlineGenerationTotal.WithLabelValues(cfg.Provider, "success").Inc()
	metrics.OutlineGenerationDuration.WithLabelValues(cfg.Provider).Observe(elapsed.Seconds())
	logger.Info(ctx, "outline generated",
		"provider", cfg.Provider,
		"model", cfg.Model,
		"chapters", result.ChapterCount(),
		"elapsed", elapsed,
	)
	return result, nil
}
