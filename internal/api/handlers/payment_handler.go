package handlers

import (
	"net/http"

	svc "course-enrollment/internal/interfaces/service"

	"github.com/gin-gonic/gin"
)

// PaymentHandler receives payment status callbacks from the billing system.
type PaymentHandler struct {
	enrollments svc.EnrollmentService
}

func NewPaymentHandler(enrollments svc.EnrollmentService) *PaymentHandler {
	return &PaymentHandler{
		enrollments: enrollments,
	}
}

// Approve handles POST /api/v1/payments/:payment_id/approve
func (h *PaymentHandler) Approve(c *gin.Context) {
	paymentID, ok := parseUUIDParam(c, "payment_id")
	if !ok {
		return
	}

	if err := h.enrollments.ApprovePayment(c.Request.Context(), paymentID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: "Payment approved",
	})
}

// Reject handles POST /api/v1/payments/:payment_id/reject
func (h *PaymentHandler) Reject(c *gin.Context) {
	paymentID, ok := parseUUIDParam(c, "payment_id")
	if !ok {
		return
	}

	if err := h.enrollments.RejectPayment(c.Request.Context(), paymentID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: "Payment rejected",
	})
}
