package infrastructure

import (
	"time"

	"github.com/shopspring/decimal"
)

// LoanApplicationModel 对应数据库中的 loan_applications 表
type LoanApplicationModel struct {
	PKID            uint            `gorm:"column:pkid;primaryKey;autoIncrement"`
	UUID            string          `gorm:"column:id;type:char(36);uniqueIndex;not null"`
	UserID          string          `gorm:"column:user_id;type:char(36);index:idx_loan_user_applied,priority:1;not null"`
	AmountRequested decimal.Decimal `gorm:"column:amount_requested;type:decimal(12,2);not null"`
	Purpose         string          `gorm:"column:purpose;type:text;not null"`
	Status          string          `gorm:"column:status;type:varchar(20);index;not null"`
	DateApplied     time.Time       `gorm:"column:date_applied;index:idx_loan_user_applied,priority:2;not null"`
	DateUpdated     time.Time       `gorm:"column:date_updated;not null"`

	FraudFlags []FraudFlagModel `gorm:"foreignKey:LoanID;references:UUID;constraint:OnDelete:CASCADE"`
}

// TableName 指定 GORM 应该使用的表名
func (LoanApplicationModel) TableName() string {
	return "loan_applications"
}

// FraudFlagModel 对应数据库中的 fraud_flags 表
type FraudFlagModel struct {
	PKID      uint      `gorm:"column:pkid;primaryKey;autoIncrement"`
	LoanID    string    `gorm:"column:loan_id;type:char(36);index;not null"`
	Reason    string    `gorm:"column:reason;type:varchar(255);not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (FraudFlagModel) TableName() string {
	return "fraud_flags"
}

// ownerEmailRow 只读取 users 表中贷款列表需要的两列。
type ownerEmailRow struct {
	ID    string
	Email string
}
