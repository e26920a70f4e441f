package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ai-toolkit-api/internal/domain/repository"
)

// newDryRunClient 只生成 SQL 不连接数据库
func newDryRunClient(t *testing.T) *Client {
	t.Helper()
	sqlDB, err := sql.Open("postgres", "host=127.0.0.1 port=1 sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		DryRun:                 true,
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return &Client{db: db}
}

func TestDeductBalanceIsConditionalUpdate(t *testing.T) {
	client := newDryRunClient(t)

	var statement string
	var vars []any
	err := client.db.Callback().Update().After("gorm:update").Register("test:capture_sql", func(tx *gorm.DB) {
		statement = tx.Statement.SQL.String()
		vars = append([]any(nil), tx.Statement.Vars...)
	})
	require.NoError(t, err)

	_, err = NewCreditRepository(client).DeductBalance(context.Background(), "u1", 8)
	// DryRun 不返回行，按条件不满足处理
	assert.True(t, errors.Is(err, repository.ErrConditionNotMet))

	assert.Contains(t, statement, `UPDATE "credits" SET`)
	assert.Contains(t, statement, `"balance"=balance - $`)
	assert.Contains(t, statement, "WHERE user_id = $")
	assert.Contains(t, statement, "AND balance >= $")
	assert.Contains(t, statement, `RETURNING "balance"`)
	assert.Contains(t, vars, "u1")
	assert.Contains(t, vars, int64(8))
}
