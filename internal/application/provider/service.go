package provider

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"deckgen-api/internal/application/port"
	"deckgen-api/internal/config"
	"deckgen-api/internal/domain/entity"
	"deckgen-api/internal/domain/repository"
	apperrors "deckgen-api/pkg/errors"
	"deckgen-api/pkg/logger"
)

// testPrompt 连通性测试使用的固定提示词
const testPrompt = "Hello, please respond with 'OK' if you can receive this message."

// TestResult 连通性测试结果
// 探测失败是预期的诊断结论而非错误，以 Success 与 Message 表达。
type TestResult struct {
	Success   bool   `json:"success"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	LatencyMS int64  `json:"latency_ms"`
	Preview   string `json:"preview,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Service 提供商配置服务
// 保存的配置持久化于 SettingsRepository，未保存时回退到启动配置。
type Service struct {
	settings repository.SettingsRepository
	factory  port.ChatModelFactory
	llmCfg   *config.LLMConfig
}

// NewService 创建提供商配置服务
func NewService(settings repository.SettingsRepository, factory port.ChatModelFactory, cfg *config.Config) *Service {
	return &Service{
		settings: settings,
		factory:  factory,
		llmCfg:   &cfg.LLM,
	}
}

// Current 返回当前生效的提供商配置
// 优先返回已保存的配置，否则由启动配置构造默认项；两者皆无时返回空壳配置。
func (s *Service) Current(ctx context.Context) (*entity.ProviderConfig, error) {
	saved, err := s.settings.GetProviderConfig(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to load provider config")
	}
	if saved != nil {
		return saved, nil
	}
	return s.bootstrapConfig(), nil
}

// bootstrapConfig 由启动配置构造默认提供商配置
func (s *Service) bootstrapConfig() *entity.ProviderConfig {
	name := s.llmCfg.DefaultProvider
	cfg := &entity.ProviderConfig{Provider: name}

	if defaults, ok := s.llmCfg.Providers[name]; ok {
		cfg.APIKey = defaults.APIKey
		cfg.BaseURL = defaults.BaseURL
		cfg.Model = defaults.Model
	}
	if entry, ok := Lookup(name); ok {
		if cfg.BaseURL == "" {
			cfg.BaseURL = entry.BaseURL
		}
		if cfg.Model == "" {
			cfg.Model = entry.DefaultModel
		}
	}
	return cfg
}

// Save 校验并原子保存提供商配置，随后使模型缓存失效
func (s *Service) Save(ctx context.Context, cfg *entity.ProviderConfig) (*entity.ProviderConfig, error) {
	normalized, err := s.normalize(cfg)
	if err != nil {
		return nil, err
	}

	normalized.UpdatedAt = time.Now()
	if err := s.settings.SaveProviderConfig(ctx, normalized); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to save provider config")
	}

	// 旧实例携带旧凭据，立即失效
	s.factory.Invalidate()

	logger.Info(ctx, "provider config saved",
		"provider", normalized.Provider,
		"model", normalized.Model,
	)
	return normalized, nil
}

// normalize 校验配置并补齐目录默认值
func (s *Service) normalize(cfg *entity.ProviderConfig) (*entity.ProviderConfig, error) {
	if cfg == nil {
		return nil, apperrors.ErrConfigIncomplete.WithDetail("provider config is required")
	}

	entry, ok := Lookup(cfg.Provider)
	if !ok {
		return nil, apperrors.ErrProviderUnknown.WithDetail("unknown provider: " + cfg.Provider)
	}

	out := *cfg
	out.APIKey = strings.TrimSpace(out.APIKey)
	out.BaseURL = strings.TrimSpace(out.BaseURL)
	out.Model = strings.TrimSpace(out.Model)

	if out.BaseURL == "" {
		out.BaseURL = entry.BaseURL
	}
	if out.Model == "" {
		out.Model = entry.DefaultModel
	}

	if out.APIKey == "" {
		return nil, apperrors.ErrConfigIncomplete.WithDetail("api_key is required")
	}
	if out.Model == "" {
		return nil, apperrors.ErrConfigIncomplete.WithDetail("model is required")
	}
	if entry.RequiresURL && out.BaseURL == "" {
		return nil, apperrors.ErrConfigIncomplete.WithDetail("base_url is required for custom provider")
	}
	return &out, nil
}

// Resolve 返回可直接用于构建 ChatModel 的完整配置
func (s *Service) Resolve(ctx context.Context) (*entity.ProviderConfig, error) {
	cfg, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	if entry, ok := Lookup(cfg.Provider); ok && cfg.BaseURL == "" {
		cfg.BaseURL = entry.BaseURL
	}
	if !cfg.Complete() {
		return nil, apperrors.ErrConfigIncomplete.WithDetail("provider config is incomplete, save a valid config first")
	}
	return cfg, nil
}

// TestConnection 对候选配置做一次连通性探测，不落盘
// cfg 为 nil 时测试当前生效配置。探测失败不报错，
// 以 Success=false 的诊断结果返回；配置本身非法才返回错误。
func (s *Service) TestConnection(ctx context.Context, cfg *entity.ProviderConfig) (*TestResult, error) {
	var err error
	if cfg == nil {
		cfg, err = s.Resolve(ctx)
		if err != nil {
			return nil, err
		}
	} else {
		cfg, err = s.normalize(cfg)
		if err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.llmCfg.TestTimeout)
	defer cancel()

	chatModel, err := s.factory.Build(ctx, cfg)
	if err != nil {
		return &TestResult{
			Provider: cfg.Provider,
			Model:    cfg.Model,
			Message:  "failed to create chat model: " + err.Error(),
		}, nil
	}

	start := time.Now()
	resp, err := chatModel.Generate(ctx,
		[]*schema.Message{schema.UserMessage(testPrompt)},
		model.WithMaxTokens(10),
		model.WithTemperature(0),
	)
	latency := time.Since(start)
	if err != nil {
		msg := "connection test failed: " + err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "connection test timed out after " + s.llmCfg.TestTimeout.String()
		}
		logger.Warn(ctx, "provider connection test failed",
			"provider", cfg.Provider,
			"model", cfg.Model,
			"error", err.Error(),
		)
		return &TestResult{
			Provider:  cfg.Provider,
			Model:     cfg.Model,
			LatencyMS: latency.Milliseconds(),
			Message:   msg,
		}, nil
	}

	preview := strings.TrimSpace(resp.Content)
	if runes := []rune(preview); len(runes) > 100 {
		preview = string(runes[:100])
	}

	logger.Info(ctx, "provider connection test succeeded",
		"provider", cfg.Provider,
		"model", cfg.Model,
		"latency", latency,
	)
	return &TestResult{
		Success:   true,
		Provider:  cfg.Provider,
		Model:     cfg.Model,
		LatencyMS: latency.Milliseconds(),
		Preview:   preview,
	}, nil
}
