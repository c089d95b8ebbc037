package service

import (
	domain "course-enrollment/internal/domain/enrollment"
)

// CreditLimitValidator enforces the per-term credit ceiling. The committed
// load counts ACTIVE, WAITLISTED and PENDING_PAYMENT enrollments of the same
// semester.
type CreditLimitValidator struct {
	Max int
}

func NewCreditLimitValidator(maxCreditsPerTerm int) *CreditLimitValidator {
	return &CreditLimitValidator{Max: maxCreditsPerTerm}
}

// Validate fails with CreditLimitExceededError when adding the candidate's
// credits would push the committed load past the ceiling.
func (v *CreditLimitValidator) Validate(currentCredits, candidateCredits int) error {
	if currentCredits+candidateCredits > v.Max {
		return &domain.CreditLimitExceededError{
			Current:   currentCredits,
			Candidate: candidateCredits,
			Max:       v.Max,
		}
	}
	return nil
}
