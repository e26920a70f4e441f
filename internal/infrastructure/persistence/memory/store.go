// Package memory 提供内存版账本存储，用于本地开发与测试
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ai-toolkit-api/internal/domain/entity"
	"ai-toolkit-api/internal/domain/repository"
)

// Store 内存账本存储，同时实现 CreditRepository、UsageRepository 与 Transactor
// 所有写操作由 txMu 串行化，事务失败时按快照回滚
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	accounts   map[string]*entity.CreditAccount
	usage      []*entity.UsageRecord
	requestIDs map[string]struct{}

	now func() time.Time
}

// txMarker 标记上下文已处于本 Store 的事务中
type txMarker struct {
	store *Store
}

// snapshot 事务开始时的数据快照
type snapshot struct {
	accounts   map[string]entity.CreditAccount
	usageLen   int
	requestIDs map[string]struct{}
}

// New 创建内存存储
func New() *Store {
	return &Store{
		accounts:   make(map[string]*entity.CreditAccount),
		usage:      make([]*entity.UsageRecord, 0),
		requestIDs: make(map[string]struct{}),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

var (
	_ repository.CreditRepository = (*Store)(nil)
	_ repository.UsageRepository  = (*Store)(nil)
	_ repository.Transactor       = (*Store)(nil)
)

// WithTransaction 在事务中执行操作
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.takeSnapshot()
	txCtx := context.WithValue(ctx, repository.TxKey{}, &txMarker{store: s})
	if err := fn(txCtx); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	m, ok := ctx.Value(repository.TxKey{}).(*txMarker)
	return ok && m.store == s
}

// write 执行写操作；不在事务中时独占 txMu，保证快照回滚不会覆盖并发写入
func (s *Store) write(ctx context.Context, fn func()) {
	if !s.inTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

func (s *Store) takeSnapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := snapshot{
		accounts:   make(map[string]entity.CreditAccount, len(s.accounts)),
		usageLen:   len(s.usage),
		requestIDs: make(map[string]struct{}, len(s.requestIDs)),
	}
	for k, v := range s.accounts {
		snap.accounts[k] = *v
	}
	for k := range s.requestIDs {
		snap.requestIDs[k] = struct{}{}
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := make(map[string]*entity.CreditAccount, len(snap.accounts))
	for k, v := range snap.accounts {
		acc := v
		accounts[k] = &acc
	}
	s.accounts = accounts
	s.usage = s.usage[:snap.usageLen]
	s.requestIDs = snap.requestIDs
}

// GetByUserID 获取账户副本，不存在时返回 nil, nil
func (s *Store) GetByUserID(ctx context.Context, userID string) (*entity.CreditAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[userID]
	if !ok {
		return nil, nil
	}
	cp := *acc
	return &cp, nil
}

// DeductBalance 条件扣减：balance >= amount 时生效
func (s *Store) DeductBalance(ctx context.Context, userID string, amount int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var (
		balance int64
		err     error
	)
	s.write(ctx, func() {
		acc, ok := s.accounts[userID]
		if !ok || acc.Balance < amount {
			err = repository.ErrConditionNotMet
			return
		}
		acc.Balance -= amount
		acc.TotalUsed += amount
		acc.UpdatedAt = s.now()
		balance = acc.Balance
	})
	return balance, err
}

// CreateIfAbsent 账户不存在时插入
func (s *Store) CreateIfAbsent(ctx context.Context, account *entity.CreditAccount) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var created bool
	s.write(ctx, func() {
		if _, ok := s.accounts[account.UserID]; ok {
			return
		}
		cp := *account
		now := s.now()
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = now
		}
		cp.UpdatedAt = now
		s.accounts[cp.UserID] = &cp
		created = true
	})
	return created, nil
}

// Create 追加用量记录
func (s *Store) Create(ctx context.Context, record *entity.UsageRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var err error
	s.write(ctx, func() {
		if record.RequestID != nil {
			key := requestKey(record.UserID, *record.RequestID)
			if _, ok := s.requestIDs[key]; ok {
				err = repository.ErrDuplicateKey
				return
			}
			s.requestIDs[key] = struct{}{}
		}
		if record.ID == "" {
			record.ID = uuid.NewString()
		}
		if record.CreatedAt.IsZero() {
			record.CreatedAt = s.now()
		}
		cp := *record
		s.usage = append(s.usage, &cp)
	})
	return err
}

// ExistsByRequestID 检查请求是否已记账
func (s *Store) ExistsByRequestID(ctx context.Context, userID, requestID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.requestIDs[requestKey(userID, requestID)]
	return ok, nil
}

// requestKey 幂等键按用户隔离
func requestKey(userID, requestID string) string {
	return userID + "\x00" + requestID
}

// ListByUser 按创建时间倒序分页
func (s *Store) ListByUser(ctx context.Context, userID string, pagination repository.Pagination) (*repository.PagedResult[*entity.UsageRecord], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	matched := make([]*entity.UsageRecord, 0)
	for i := len(s.usage) - 1; i >= 0; i-- {
		if s.usage[i].UserID == userID {
			cp := *s.usage[i]
			matched = append(matched, &cp)
		}
	}
	s.mu.RUnlock()

	// 追加顺序即时间顺序；同一时刻写入时保持倒序
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	start := pagination.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + pagination.Limit()
	if end > len(matched) {
		end = len(matched)
	}
	return repository.NewPagedResult(matched[start:end], total, pagination), nil
}

// HealthCheck 内存存储始终可用
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Accounts 返回所有账户的副本，按用户 ID 排序
func (s *Store) Accounts() []entity.CreditAccount {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]entity.CreditAccount, 0, len(s.accounts))
	for _, acc := range s.accounts {
		out = append(out, *acc)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.Compare(out[i].UserID, out[j].UserID) < 0
	})
	return out
}

// UsageCount 返回用户的用量记录数
func (s *Store) UsageCount(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, r := range s.usage {
		if r.UserID == userID {
			n++
		}
	}
	return n
}
