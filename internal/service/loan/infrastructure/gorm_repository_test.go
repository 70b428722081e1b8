package infrastructure

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Abbracx/loan-be/internal/service/loan/domain"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

var loanColumns = []string{"pkid", "id", "user_id", "amount_requested", "purpose", "status", "date_applied", "date_updated"}

func TestGormLoanRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormLoanRepository(db)
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	loan := &domain.LoanApplication{
		ID:              "5f0c6f53-2b7d-4b8e-9a53-0b8b8d7b2a11",
		UserID:          "u-1",
		AmountRequested: decimal.RequireFromString("1500.50"),
		Purpose:         "rent",
		Status:          domain.StatusPending,
		DateApplied:     now,
		DateUpdated:     now,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `loan_applications`")).
		WithArgs(loan.ID, "u-1", sqlmock.AnyArg(), "rent", "pending", now, now).
		WillReturnResult(sqlmock.NewResult(42, 1))

	require.NoError(t, repo.Create(context.Background(), loan))
	assert.EqualValues(t, 42, loan.PKID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormLoanRepository_FindByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormLoanRepository(db)
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `loan_applications` WHERE id = ?")).
		WillReturnRows(sqlmock.NewRows(loanColumns).
			AddRow(7, "loan-1", "u-1", "6000000.00", "car", "flagged", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `fraud_flags` WHERE `fraud_flags`.`loan_id` = ? ORDER BY pkid ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"pkid", "loan_id", "reason", "created_at"}).
			AddRow(1, "loan-1", "first", now).
			AddRow(2, "loan-1", "second", now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email FROM `users` WHERE id IN (?)")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).AddRow("u-1", "u1@x.com"))

	loan, err := repo.FindByID(context.Background(), "loan-1")
	require.NoError(t, err)
	assert.EqualValues(t, 7, loan.PKID)
	assert.Equal(t, domain.StatusFlagged, loan.Status)
	assert.Equal(t, "u1@x.com", loan.UserEmail)
	assert.True(t, loan.AmountRequested.Equal(decimal.NewFromInt(6_000_000)))
	assert.Equal(t, []string{"first", "second"}, loan.Reasons())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormLoanRepository_FindByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormLoanRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `loan_applications` WHERE id = ?")).
		WillReturnRows(sqlmock.NewRows(loanColumns))

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrLoanNotFound)
}

func TestGormLoanRepository_UpdateStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormLoanRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE `loan_applications` SET `date_updated`=?,`status`=? WHERE id = ?")).
		WithArgs(now, "approved", "loan-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), "loan-1", domain.StatusApproved, now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormLoanRepository_AddFraudFlags(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormLoanRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `fraud_flags` (`loan_id`,`reason`,`created_at`) VALUES (?,?,?),(?,?,?)")).
		WithArgs("loan-1", "a", now, "loan-1", "b", now).
		WillReturnResult(sqlmock.NewResult(10, 2))

	flags, err := repo.AddFraudFlags(context.Background(), "loan-1", []string{"a", "b"}, now)
	require.NoError(t, err)
	require.Len(t, flags, 2)
	assert.Equal(t, "a", flags[0].Reason)
	assert.Equal(t, "b", flags[1].Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormLoanRepository_CountByUserSince(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormLoanRepository(db)
	since := time.Now().Add(-24 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM `loan_applications` WHERE user_id = ? AND date_applied >= ?")).
		WithArgs("u-1", since).
		WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(3))

	n, err := repo.CountByUserSince(context.Background(), "u-1", since)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestGormLoanRepository_List(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormLoanRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM `loan_applications` WHERE user_id = ? AND status = ?")).
		WithArgs("u-1", "pending").
		WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(12))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `loan_applications` WHERE user_id = ? AND status = ? ORDER BY `amount_requested`,`pkid` DESC LIMIT ? OFFSET ?")).
		WillReturnRows(sqlmock.NewRows(loanColumns).
			AddRow(3, "loan-3", "u-1", "100.00", "a", "pending", now, now).
			AddRow(2, "loan-2", "u-1", "200.00", "b", "pending", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `fraud_flags` WHERE `fraud_flags`.`loan_id` IN (?,?) ORDER BY pkid ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"pkid", "loan_id", "reason", "created_at"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email FROM `users` WHERE id IN (?)")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).AddRow("u-1", "u1@x.com"))

	loans, total, err := repo.List(context.Background(), domain.ListQuery{
		OwnerID:  "u-1",
		Status:   domain.StatusPending,
		Ordering: domain.OrderAmountAsc,
		Offset:   10,
		Limit:    10,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 12, total)
	require.Len(t, loans, 2)
	assert.Equal(t, "loan-3", loans[0].ID)
	assert.Equal(t, "u1@x.com", loans[1].UserEmail)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormLoanRepository_ListEmpty(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormLoanRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM `loan_applications`")).
		WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(0))

	loans, total, err := repo.List(context.Background(), domain.ListQuery{Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, loans)
	assert.NoError(t, mock.ExpectationsWereMet())
}
