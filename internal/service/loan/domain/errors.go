// internal/service/loan/domain/errors.go
package domain

import "errors"

var (
	ErrLoanNotFound      = errors.New("loan application not found")
	ErrApplicantNotFound = errors.New("applicant not found")
	ErrInvalidLoan       = errors.New("invalid loan application")
	ErrInvalidTransition = errors.New("loan status transition not allowed")
	ErrForbidden         = errors.New("you do not have permission to perform this action")
	ErrNoReasons         = errors.New("at least one flag reason is required")
)
