// Package wire 手工组装应用依赖
package wire

import (
	"context"

	"github.com/gin-gonic/gin"

	"deckgen-api/internal/application/deck"
	"deckgen-api/internal/application/outline"
	"deckgen-api/internal/application/provider"
	"deckgen-api/internal/application/source"
	"deckgen-api/internal/application/workflow"
	"deckgen-api/internal/config"
	"deckgen-api/internal/events"
	"deckgen-api/internal/infrastructure/extract"
	"deckgen-api/internal/infrastructure/llm"
	"deckgen-api/internal/infrastructure/persistence/redis"
	"deckgen-api/internal/infrastructure/render"
	"deckgen-api/internal/interfaces/http/handler"
	"deckgen-api/internal/interfaces/http/router"
	"deckgen-api/pkg/logger"
)

// App 已组装的应用
type App struct {
	router *router.Router
	bus    *events.Bus
	redis  *redis.Client
}

// Engine 返回 HTTP 引擎
func (a *App) Engine() *gin.Engine {
	return a.router.Engine()
}

// InitializeApp 组装全部依赖，返回应用与清理函数
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	// 基础设施
	redisClient, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}

	bus := events.NewBus(100)
	cache := redis.NewCache(redisClient)

	projectStore := redis.NewProjectStore(redisClient)
	settingsStore := redis.NewSettingsStore(redisClient)
	limiter := redis.NewRateLimiter(redisClient)

	renderClient := render.NewClient(cfg)
	cachedRenderer := render.NewCachedRenderer(renderClient, cache, cfg.Templates.CacheTTL)
	extractClient := extract.NewClient(cfg)
	chatModels := llm.NewEinoFactory(cfg)

	// 应用服务
	providers := provider.NewService(settingsStore, chatModels, cfg)
	generator := outline.NewGenerator(providers, chatModels, cfg)
	sources := source.NewService(cfg, extractClient)
	machine := workflow.NewMachine(bus)
	decks := deck.NewService(projectStore, machine, sources, generator, cachedRenderer, bus)

	// HTTP 层
	handlers := &router.Handlers{
		Health:   handler.NewHealthHandler(redisClient, cfg.App.Version),
		Project:  handler.NewProjectHandler(decks),
		Provider: handler.NewProviderHandler(providers, bus),
		Template: handler.NewTemplateHandler(decks),
	}
	r := router.New(cfg, handlers, limiter)

	app := &App{
		router: r,
		bus:    bus,
		redis:  redisClient,
	}

	cleanup := func() {
		bus.Close()
		if err := redisClient.Close(); err != nil {
			logger.Warn(ctx, "failed to close redis client", "error", err.Error())
		}
	}
	return app, cleanup, nil
}
