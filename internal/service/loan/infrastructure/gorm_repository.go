package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Abbracx/loan-be/internal/service/loan/domain"
)

// GormLoanRepository 是 LoanRepository 的 GORM 实现
type GormLoanRepository struct {
	db *gorm.DB
}

func NewGormLoanRepository(db *gorm.DB) *GormLoanRepository {
	return &GormLoanRepository{db: db}
}

var _ domain.LoanRepository = (*GormLoanRepository)(nil)

var orderColumns = map[domain.Ordering]clause.OrderByColumn{
	domain.OrderDateAppliedDesc: {Column: clause.Column{Name: "date_applied"}, Desc: true},
	domain.OrderDateAppliedAsc:  {Column: clause.Column{Name: "date_applied"}},
	domain.OrderAmountDesc:      {Column: clause.Column{Name: "amount_requested"}, Desc: true},
	domain.OrderAmountAsc:       {Column: clause.Column{Name: "amount_requested"}},
}

func (r *GormLoanRepository) Create(ctx context.Context, loan *domain.LoanApplication) error {
	model := FromDomainLoan(loan)
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(model).Error; err != nil {
		return err
	}
	loan.PKID = model.PKID
	return nil
}

func (r *GormLoanRepository) FindByID(ctx context.Context, id string) (*domain.LoanApplication, error) {
	var model LoanApplicationModel
	err := r.db.WithContext(ctx).
		Preload("FraudFlags", orderFlags).
		Where("id = ?", id).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrLoanNotFound
		}
		return nil, err
	}

	emails, err := r.ownerEmails(ctx, []LoanApplicationModel{model})
	if err != nil {
		return nil, err
	}
	return ToDomainLoan(&model, emails[model.UserID]), nil
}

func (r *GormLoanRepository) UpdateStatus(ctx context.Context, id string, status domain.Status, updatedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&LoanApplicationModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       string(status),
			"date_updated": updatedAt,
		}).Error
}

// AddFraudFlags 一次批量插入，自增主键保证读取时的顺序与输入一致。
func (r *GormLoanRepository) AddFraudFlags(ctx context.Context, loanID string, reasons []string, at time.Time) ([]domain.FraudFlag, error) {
	if len(reasons) == 0 {
		return nil, nil
	}
	models := make([]FraudFlagModel, 0, len(reasons))
	for _, reason := range reasons {
		models = append(models, FraudFlagModel{LoanID: loanID, Reason: reason, CreatedAt: at})
	}
	if err := r.db.WithContext(ctx).Create(&models).Error; err != nil {
		return nil, err
	}

	flags := make([]domain.FraudFlag, 0, len(models))
	for i := range models {
		flags = append(flags, ToDomainFraudFlag(&models[i]))
	}
	return flags, nil
}

func (r *GormLoanRepository) CountByUserSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&LoanApplicationModel{}).
		Where("user_id = ? AND date_applied >= ?", userID, since).
		Count(&n).Error
	return n, err
}

func (r *GormLoanRepository) List(ctx context.Context, q domain.ListQuery) ([]*domain.LoanApplication, int64, error) {
	filter := func(db *gorm.DB) *gorm.DB {
		if q.OwnerID != "" {
			db = db.Where("user_id = ?", q.OwnerID)
		}
		if q.Status != "" {
			db = db.Where("status = ?", string(q.Status))
		}
		return db
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&LoanApplicationModel{}).Scopes(filter).Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count loans")
	}
	if total == 0 {
		return []*domain.LoanApplication{}, 0, nil
	}

	order, ok := orderColumns[q.Ordering]
	if !ok {
		order = orderColumns[domain.OrderDateAppliedDesc]
	}

	var models []LoanApplicationModel
	err := r.db.WithContext(ctx).
		Scopes(filter).
		Preload("FraudFlags", orderFlags).
		Order(order).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "pkid"}, Desc: true}).
		Offset(q.Offset).
		Limit(q.Limit).
		Find(&models).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "list loans")
	}

	emails, err := r.ownerEmails(ctx, models)
	if err != nil {
		return nil, 0, err
	}
	loans := make([]*domain.LoanApplication, 0, len(models))
	for i := range models {
		loans = append(loans, ToDomainLoan(&models[i], emails[models[i].UserID]))
	}
	return loans, total, nil
}

// ownerEmails 批量读取申请人的邮箱。
func (r *GormLoanRepository) ownerEmails(ctx context.Context, models []LoanApplicationModel) (map[string]string, error) {
	ids := make([]string, 0, len(models))
	seen := make(map[string]bool, len(models))
	for _, m := range models {
		if !seen[m.UserID] {
			seen[m.UserID] = true
			ids = append(ids, m.UserID)
		}
	}
	emails := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return emails, nil
	}

	var rows []ownerEmailRow
	err := r.db.WithContext(ctx).
		Table("users").
		Select("id, email").
		Where("id IN ?", ids).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "load applicant emails")
	}
	for _, row := range rows {
		emails[row.ID] = row.Email
	}
	return emails, nil
}

func orderFlags(db *gorm.DB) *gorm.DB {
	return db.Order("pkid ASC")
}
