package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"ai-toolkit-api/internal/config"
	"ai-toolkit-api/internal/wire"
)

func main() {
	_ = godotenv.Load()

	seed := flag.String("seed", os.Getenv("BOOTSTRAP_SEED_USERS"), "comma separated user ids to provision")
	flag.Parse()

	fmt.Println("Starting ledger bootstrap...")

	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	// 2. 初始化账本存储
	layer, cleanup, err := wire.InitializeBootstrap(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize ledger store: %v", err)
	}
	defer cleanup()

	// 3. 迁移表结构
	if layer.Store.Postgres != nil {
		fmt.Println("Migrating credits and usage_history tables...")
		if err := layer.Store.Postgres.Migrate(ctx); err != nil {
			log.Fatalf("failed to migrate schema: %v", err)
		}
	} else {
		fmt.Println("Non-postgres driver, skipping migration")
	}

	// 4. 预置账户
	for _, userID := range strings.Split(*seed, ",") {
		userID = strings.TrimSpace(userID)
		if userID == "" {
			continue
		}
		created, err := layer.Ledger.EnsureAccount(ctx, userID, cfg.Credits.InitialBalance)
		if err != nil {
			log.Fatalf("failed to provision account %s: %v", userID, err)
		}
		if created {
			fmt.Printf("Account %s created with %d credits\n", userID, cfg.Credits.InitialBalance)
		} else {
			fmt.Printf("Account %s already exists\n", userID)
		}
	}

	fmt.Println("Bootstrap completed.")
}
