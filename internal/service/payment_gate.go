package service

import (
	"context"
	"fmt"
	"time"

	domain "course-enrollment/internal/domain/enrollment"
	interfaces "course-enrollment/internal/interfaces/infrastructure"

	"github.com/google/uuid"
)

// PaymentGate exposes payment status as the precondition for activation. It
// moves no money; the payment service owns the amounts, this gate only reacts
// to status.
type PaymentGate struct {
	payments interfaces.PaymentRepository
}

func NewPaymentGate(payments interfaces.PaymentRepository) *PaymentGate {
	return &PaymentGate{payments: payments}
}

// IsApproved reports whether the referenced payment has been approved. An
// enrollment without a payment reference is never approved.
func (g *PaymentGate) IsApproved(ctx context.Context, paymentID *uuid.UUID) (bool, error) {
	if paymentID == nil {
		return false, nil
	}
	payment, err := g.payments.GetByID(ctx, *paymentID)
	if err != nil {
		return false, fmt.Errorf("failed to load payment %s: %w", *paymentID, err)
	}
	if payment == nil {
		return false, nil
	}
	return payment.Status == domain.PaymentApproved, nil
}

// Approve marks the payment APPROVED and returns it.
func (g *PaymentGate) Approve(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	return g.setStatus(ctx, paymentID, domain.PaymentApproved)
}

// Reject marks the payment REJECTED and returns it.
func (g *PaymentGate) Reject(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	return g.setStatus(ctx, paymentID, domain.PaymentRejected)
}

func (g *PaymentGate) setStatus(ctx context.Context, paymentID uuid.UUID, status domain.PaymentStatus) (*domain.Payment, error) {
	payment, err := g.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment %s: %w", paymentID, err)
	}
	if payment == nil {
		return nil, &domain.NotFoundError{Kind: "payment", ID: paymentID.String()}
	}
	payment.Status = status
	payment.UpdatedAt = time.Now()
	if err := g.payments.Update(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to update payment %s: %w", paymentID, err)
	}
	return payment, nil
}
