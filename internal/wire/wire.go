//go:build wireinject
// +build wireinject

package wire

import (
	"context"

	"github.com/google/wire"

	"ai-toolkit-api/internal/config"
	"ai-toolkit-api/internal/interfaces/http/handler"
	"ai-toolkit-api/internal/interfaces/http/router"
	"ai-toolkit-api/internal/workflow/prompt"
)

// StoreSet 账本存储
var StoreSet = wire.NewSet(
	ProvideLedgerStore,
)

// RedisSet 可选 Redis 及其上层组件
var RedisSet = wire.NewSet(
	ProvideRedisClientOptional,
	ProvideBalanceCache,
	ProvideRateLimiter,
	ProvideMessagingProducer,
	ProvideDebitRetryQueue,
)

// InferenceSet 推理与工具目录
var InferenceSet = wire.NewSet(
	ProvideHuggingFaceClient,
	ProvideLLMFactory,
	ProvideTextGenerator,
	prompt.NewRegistry,
	ProvideCatalog,
	ProvideRunner,
)

// RouterSet 路由相关
var RouterSet = wire.NewSet(
	ProvideLedger,
	handler.NewToolkitHandler,
	ProvideCreditsHandler,
	ProvideHealthHandler,
	wire.Struct(new(router.Handlers), "*"),
	ProvideRouter,
)

// InitializeApp 初始化 API 网关
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	wire.Build(
		StoreSet,
		RedisSet,
		InferenceSet,
		RouterSet,
	)
	return nil, nil, nil
}

// InitializeLedgerWorker 初始化扣费重放 worker
func InitializeLedgerWorker(ctx context.Context, cfg *config.Config) (*LedgerWorker, func(), error) {
	wire.Build(
		StoreSet,
		ProvideRedisClient,
		ProvideLedgerWithoutCache,
		ProvideDebitRetryConsumer,
		wire.Struct(new(LedgerWorker), "*"),
	)
	return nil, nil, nil
}

// InitializeBootstrap 初始化迁移与账户预置任务
func InitializeBootstrap(ctx context.Context, cfg *config.Config) (*BootstrapLayer, func(), error) {
	wire.Build(
		StoreSet,
		ProvideLedgerWithoutCache,
		wire.Struct(new(BootstrapLayer), "*"),
	)
	return nil, nil, nil
}
