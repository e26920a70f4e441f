// Package entity 定义领域实体
package entity

import "time"

// DefaultInitialBalance 新账户的初始额度
const DefaultInitialBalance int64 = 50

// CreditAccount 用户额度账户
// 不变量：Balance >= 0，TotalUsed 单调不减，扣费前后 Balance+TotalUsed 守恒
type CreditAccount struct {
	UserID    string    `json:"user_id" gorm:"type:varchar(128);primaryKey"`
	Balance   int64     `json:"balance" gorm:"not null;default:0;check:balance >= 0"`
	TotalUsed int64     `json:"total_used" gorm:"not null;default:0;check:total_used >= 0"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (CreditAccount) TableName() string {
	return "credits"
}

// NewCreditAccount 创建新账户
func NewCreditAccount(userID string, initialBalance int64) *CreditAccount {
	now := time.Now().UTC()
	return &CreditAccount{
		UserID:    userID,
		Balance:   initialBalance,
		TotalUsed: 0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Lifetime 返回账户累计发放的额度
func (a *CreditAccount) Lifetime() int64 {
	return a.Balance + a.TotalUsed
}

// CanAfford 判断余额是否足够
func (a *CreditAccount) CanAfford(amount int64) bool {
	return a.Balance >= amount
}
