package postgres

import (
	"context"
	"fmt"

	"ai-toolkit-api/internal/domain/entity"
)

// Migrate 创建或更新账本表结构
func (c *Client) Migrate(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "postgres.Migrate")
	defer span.End()

	db := c.db.WithContext(ctx)
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto`).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to enable pgcrypto: %w", err)
	}
	if err := db.AutoMigrate(&entity.CreditAccount{}, &entity.UsageRecord{}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to migrate ledger tables: %w", err)
	}
	return nil
}
