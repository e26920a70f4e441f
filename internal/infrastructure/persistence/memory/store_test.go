package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-toolkit-api/internal/domain/entity"
	"ai-toolkit-api/internal/domain/repository"
)

func TestDeductBalanceIsConditional(t *testing.T) {
	ctx := context.Background()
	s := New()

	created, err := s.CreateIfAbsent(ctx, entity.NewCreditAccount("u1", 10))
	require.NoError(t, err)
	require.True(t, created)

	bal, err := s.DeductBalance(ctx, "u1", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(6), bal)

	_, err = s.DeductBalance(ctx, "u1", 7)
	assert.ErrorIs(t, err, repository.ErrConditionNotMet)

	_, err = s.DeductBalance(ctx, "missing", 1)
	assert.ErrorIs(t, err, repository.ErrConditionNotMet)

	acc, err := s.GetByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(6), acc.Balance)
	assert.Equal(t, int64(4), acc.TotalUsed)
}

func TestCreateIfAbsentNeverResets(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.CreateIfAbsent(ctx, entity.NewCreditAccount("u1", 50))
	require.NoError(t, err)
	_, err = s.DeductBalance(ctx, "u1", 20)
	require.NoError(t, err)

	created, err := s.CreateIfAbsent(ctx, entity.NewCreditAccount("u1", 50))
	require.NoError(t, err)
	assert.False(t, created)

	acc, err := s.GetByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(30), acc.Balance)
}

func TestTransactionRollback(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.CreateIfAbsent(ctx, entity.NewCreditAccount("u1", 50))
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.DeductBalance(ctx, "u1", 8); err != nil {
			return err
		}
		rid := "req-1"
		if err := s.Create(ctx, &entity.UsageRecord{UserID: "u1", ToolName: "t", CreditsUsed: 8, RequestID: &rid}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	acc, err := s.GetByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), acc.Balance)
	assert.Equal(t, int64(0), acc.TotalUsed)
	assert.Equal(t, 0, s.UsageCount("u1"))

	exists, err := s.ExistsByRequestID(ctx, "u1", "req-1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUsageRequestIDUnique(t *testing.T) {
	ctx := context.Background()
	s := New()
	rid := "req-1"

	require.NoError(t, s.Create(ctx, &entity.UsageRecord{UserID: "u1", CreditsUsed: 1, RequestID: &rid}))
	err := s.Create(ctx, &entity.UsageRecord{UserID: "u1", CreditsUsed: 1, RequestID: &rid})
	assert.ErrorIs(t, err, repository.ErrDuplicateKey)

	// 没有幂等键的记录不受约束
	require.NoError(t, s.Create(ctx, &entity.UsageRecord{UserID: "u1", CreditsUsed: 1}))
	require.NoError(t, s.Create(ctx, &entity.UsageRecord{UserID: "u1", CreditsUsed: 1}))
	assert.Equal(t, 3, s.UsageCount("u1"))

	// 幂等键按用户隔离
	require.NoError(t, s.Create(ctx, &entity.UsageRecord{UserID: "u2", CreditsUsed: 1, RequestID: &rid}))
	exists, err := s.ExistsByRequestID(ctx, "u2", rid)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = s.ExistsByRequestID(ctx, "u3", rid)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestListByUserNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()

	for _, tool := range []string{"a", "b", "c"} {
		require.NoError(t, s.Create(ctx, &entity.UsageRecord{UserID: "u1", ToolName: tool, CreditsUsed: 1}))
	}
	require.NoError(t, s.Create(ctx, &entity.UsageRecord{UserID: "u2", ToolName: "x", CreditsUsed: 1}))

	page, err := s.ListByUser(ctx, "u1", repository.NewPagination(1, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "c", page.Items[0].ToolName)
	assert.Equal(t, "b", page.Items[1].ToolName)

	page, err = s.ListByUser(ctx, "u1", repository.NewPagination(2, 2))
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "a", page.Items[0].ToolName)
}
