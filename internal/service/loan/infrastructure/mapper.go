package infrastructure

import (
	"github.com/Abbracx/loan-be/internal/service/loan/domain"
)

// ToDomainLoan 将数据库模型转换为领域模型
func ToDomainLoan(model *LoanApplicationModel, email string) *domain.LoanApplication {
	if model == nil {
		return nil
	}
	flags := make([]domain.FraudFlag, 0, len(model.FraudFlags))
	for i := range model.FraudFlags {
		flags = append(flags, ToDomainFraudFlag(&model.FraudFlags[i]))
	}
	return &domain.LoanApplication{
		PKID:            model.PKID,
		ID:              model.UUID,
		UserID:          model.UserID,
		UserEmail:       email,
		AmountRequested: model.AmountRequested,
		Purpose:         model.Purpose,
		Status:          domain.Status(model.Status),
		DateApplied:     model.DateApplied,
		DateUpdated:     model.DateUpdated,
		FraudFlags:      flags,
	}
}

func ToDomainFraudFlag(model *FraudFlagModel) domain.FraudFlag {
	return domain.FraudFlag{
		PKID:      model.PKID,
		LoanID:    model.LoanID,
		Reason:    model.Reason,
		CreatedAt: model.CreatedAt,
	}
}

// FromDomainLoan 只转换申请本身，标记通过 AddFraudFlags 单独写入。
func FromDomainLoan(loan *domain.LoanApplication) *LoanApplicationModel {
	if loan == nil {
		return nil
	}
	return &LoanApplicationModel{
		PKID:            loan.PKID,
		UUID:            loan.ID,
		UserID:          loan.UserID,
		AmountRequested: loan.AmountRequested,
		Purpose:         loan.Purpose,
		Status:          string(loan.Status),
		DateApplied:     loan.DateApplied,
		DateUpdated:     loan.DateUpdated,
	}
}
