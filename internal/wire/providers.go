// Package wire 提供依赖注入配置
package wire

import (
	"context"
	"fmt"
	"os"

	"ai-toolkit-api/internal/application/credit"
	"ai-toolkit-api/internal/application/toolkit"
	"ai-toolkit-api/internal/config"
	"ai-toolkit-api/internal/domain/repository"
	"ai-toolkit-api/internal/domain/service"
	"ai-toolkit-api/internal/infrastructure/huggingface"
	"ai-toolkit-api/internal/infrastructure/llm"
	"ai-toolkit-api/internal/infrastructure/messaging"
	"ai-toolkit-api/internal/infrastructure/persistence/memory"
	"ai-toolkit-api/internal/infrastructure/persistence/postgres"
	"ai-toolkit-api/internal/infrastructure/persistence/redis"
	"ai-toolkit-api/internal/interfaces/http/handler"
	"ai-toolkit-api/internal/interfaces/http/middleware"
	"ai-toolkit-api/internal/interfaces/http/router"
	"ai-toolkit-api/internal/workflow/prompt"
	"ai-toolkit-api/pkg/logger"
)

// LedgerStore 账本存储，按 database.driver 选择 postgres 或内存实现
type LedgerStore struct {
	Credits repository.CreditRepository
	Usage   repository.UsageRepository
	Tx      repository.Transactor
	Health  handler.HealthChecker
	// Postgres 仅 postgres 驱动下非空，用于迁移
	Postgres *postgres.Client
}

// LedgerWorker 扣费重放 worker 依赖
type LedgerWorker struct {
	Ledger   *credit.Ledger
	Consumer *messaging.Consumer
	Redis    *redis.Client
}

// BootstrapLayer 初始化任务依赖
type BootstrapLayer struct {
	Store  *LedgerStore
	Ledger *credit.Ledger
}

// ProvideLedgerStore 提供账本存储
func ProvideLedgerStore(ctx context.Context, cfg *config.Config) (*LedgerStore, func(), error) {
	switch cfg.Database.Driver {
	case "memory":
		logger.Warn(ctx, "using in-memory ledger store, data is not persisted")
		store := memory.New()
		return &LedgerStore{Credits: store, Usage: store, Tx: store, Health: store}, func() {}, nil
	case "", "postgres":
		client, err := postgres.NewClient(&cfg.Database.Postgres)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			_ = client.Close()
		}
		return &LedgerStore{
			Credits:  postgres.NewCreditRepository(client),
			Usage:    postgres.NewUsageRepository(client),
			Tx:       postgres.NewTxManager(client),
			Health:   client,
			Postgres: client,
		}, cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
}

// ProvideRedisClient 提供 Redis 客户端（必需）
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClientOptional 未启用 Redis 时返回 nil，缓存、限流与重放队列随之关闭
func ProvideRedisClientOptional(ctx context.Context, cfg *config.Config) (*redis.Client, func(), error) {
	if !cfg.Cache.Redis.Enabled {
		logger.Warn(ctx, "redis disabled, balance cache, rate limit and debit retry are off")
		return nil, func() {}, nil
	}
	return ProvideRedisClient(cfg)
}

// ProvideBalanceCache 提供余额缓存
func ProvideBalanceCache(client *redis.Client, cfg *config.Config) *redis.BalanceCache {
	if client == nil {
		return nil
	}
	return redis.NewBalanceCache(redis.NewCache(client), cfg.Cache.BalanceTTL)
}

// ProvideRateLimiter 提供限流器
func ProvideRateLimiter(client *redis.Client) middleware.RateLimiter {
	if client == nil {
		return nil
	}
	return redis.NewRateLimiter(client)
}

// ProvideMessagingProducer 提供消息生产者
func ProvideMessagingProducer(client *redis.Client, cfg *config.Config) *messaging.Producer {
	if client == nil {
		return nil
	}
	return messaging.NewProducer(client.Redis(), int64(cfg.Messaging.RedisStream.MaxLen))
}

// ProvideDebitRetryQueue 提供扣费重放队列
func ProvideDebitRetryQueue(producer *messaging.Producer) service.DebitRetryQueue {
	if producer == nil {
		return nil
	}
	return producer
}

// ProvideLedger 提供账本
func ProvideLedger(store *LedgerStore, cache *redis.BalanceCache) *credit.Ledger {
	ledger := credit.NewLedger(store.Credits, store.Usage, store.Tx)
	if cache != nil {
		ledger.SetBalanceCache(cache)
	}
	return ledger
}

// ProvideLedgerWithoutCache worker 与 bootstrap 使用的账本
func ProvideLedgerWithoutCache(store *LedgerStore) *credit.Ledger {
	return credit.NewLedger(store.Credits, store.Usage, store.Tx)
}

// ProvideHuggingFaceClient 提供 Hugging Face 推理客户端
func ProvideHuggingFaceClient(cfg *config.Config) *huggingface.Client {
	return huggingface.NewClient(&cfg.HuggingFace)
}

// ProvideLLMFactory 提供 ChatModel 工厂
func ProvideLLMFactory(cfg *config.Config, hf *huggingface.Client) (*llm.Factory, func()) {
	factory := llm.NewFactory(cfg, hf)
	return factory, func() {
		_ = factory.Close()
	}
}

// ProvideTextGenerator 默认 provider 的文本生成器
func ProvideTextGenerator(factory *llm.Factory) service.TextGenerator {
	return llm.NewGenerator(factory, factory.DefaultProvider())
}

// ProvideCatalog 提供工具目录
func ProvideCatalog(cfg *config.Config, gen service.TextGenerator, hf *huggingface.Client, prompts *prompt.Registry) *toolkit.Catalog {
	return toolkit.NewCatalog(toolkit.Deps{
		Generator:  gen,
		Classifier: hf,
		Summarizer: hf,
		Prompts:    prompts,
	}, cfg.Toolkit.Costs)
}

// ProvideRunner 提供工具执行器
func ProvideRunner(cfg *config.Config, ledger *credit.Ledger, retry service.DebitRetryQueue) *toolkit.Runner {
	return toolkit.NewRunner(ledger, retry, toolkit.RunnerConfig{
		AutoProvision:  cfg.Credits.AutoProvision,
		InitialBalance: cfg.Credits.InitialBalance,
		RequireUser:    cfg.Toolkit.RequireUser,
		Timeout:        cfg.Toolkit.UpstreamTimeout,
	})
}

// ProvideCreditsHandler 提供额度处理器
func ProvideCreditsHandler(cfg *config.Config, ledger *credit.Ledger, cache *redis.BalanceCache) *handler.CreditsHandler {
	return handler.NewCreditsHandler(ledger, cache, cfg.Credits.InitialBalance)
}

// ProvideHealthHandler 提供健康检查处理器，Redis 为可选依赖
func ProvideHealthHandler(cfg *config.Config, store *LedgerStore, client *redis.Client) *handler.HealthHandler {
	storeName := cfg.Database.Driver
	if storeName == "" {
		storeName = "postgres"
	}
	deps := []handler.Dependency{{Name: storeName, Checker: store.Health, Required: true}}
	if client != nil {
		deps = append(deps, handler.Dependency{Name: "redis", Checker: client})
	} else {
		deps = append(deps, handler.Dependency{Name: "redis"})
	}
	return handler.NewHealthHandler(cfg.App.Version, deps...)
}

// ProvideRouter 提供路由器
func ProvideRouter(cfg *config.Config, handlers router.Handlers, limiter middleware.RateLimiter) *router.Router {
	return router.New(cfg, handlers, limiter)
}

// ProvideDebitRetryConsumer 提供扣费重放消费者
func ProvideDebitRetryConsumer(client *redis.Client, cfg *config.Config) *messaging.Consumer {
	rs := cfg.Messaging.RedisStream
	host, _ := os.Hostname()
	return messaging.NewConsumer(client.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamDebitRetry,
		Group:         messaging.ConsumerGroupLedgerRetry,
		ConsumerName:  fmt.Sprintf("ledger-worker-%s-%d", host, os.Getpid()),
		BlockTimeout:  rs.BlockTimeout,
		ClaimInterval: rs.ClaimInterval,
		RetryLimit:    rs.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    rs.RetryBackoff.Initial,
			Max:        rs.RetryBackoff.Max,
			Multiplier: rs.RetryBackoff.Multiplier,
		},
	})
}
