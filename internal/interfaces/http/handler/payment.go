package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	billingapp "github.com/labbill/backend/internal/application/billing"
	"github.com/labbill/backend/internal/domain/billing"
	"github.com/labbill/backend/internal/interfaces/http/dto"
)

// PaymentHandler handles payment-related API endpoints
type PaymentHandler struct {
	BaseHandler
	paymentService *billingapp.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(paymentService *billingapp.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

// RegisterRoutes registers payment routes
func (h *PaymentHandler) RegisterRoutes(rg *gin.RouterGroup) {
	payments := rg.Group("/payments")
	{
		payments.POST("", h.ProcessPayment)
		payments.GET("", h.ListPayments)
		payments.GET("/:id", h.GetPayment)
		payments.POST("/:id/refund", h.RefundPayment)
		payments.POST("/preview", h.PreviewAllocation)
	}
	rg.POST("/clients/:clientId/invoices/:invoiceId/apply-credits", h.ApplyCredits)
}

// ===================== Request/Response DTOs =====================

// ProcessPaymentRequest represents an incoming payment submission
type ProcessPaymentRequest struct {
	ClientID         string                      `json:"client_id" binding:"required,uuid"`
	InvoiceIDs       []string                    `json:"invoice_ids" binding:"required,min=1,dive,uuid"`
	Amount           float64                     `json:"amount" binding:"required,gt=0"`
	Method           string                      `json:"method" binding:"required"`
	Reference        string                      `json:"reference"`
	Strategy         string                      `json:"strategy"`
	Primary          *InsuranceAdjustmentRequest `json:"primary"`
	Secondary        *InsuranceAdjustmentRequest `json:"secondary"`
	AllowOverpayment bool                        `json:"allow_overpayment"`
}

// RefundPaymentRequest represents a refund of a committed payment
type RefundPaymentRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
	Reason string  `json:"reason" binding:"required"`
}

// RefundResultResponse represents the outcome of a refund
type RefundResultResponse struct {
	Payment PaymentResponse `json:"payment"`
	Credit  CreditResponse  `json:"credit"`
}

// PreviewAllocationRequest represents an allocation dry-run request
type PreviewAllocationRequest struct {
	ClientID string  `json:"client_id" binding:"required,uuid"`
	Amount   float64 `json:"amount" binding:"required,gt=0"`
	Strategy string  `json:"strategy"`
}

// AllocationResponse represents one invoice allocation
type AllocationResponse struct {
	InvoiceID     string  `json:"invoice_id"`
	InvoiceNumber string  `json:"invoice_number"`
	Amount        float64 `json:"amount"`
}

// PaymentResultResponse represents the outcome of a committed payment
type PaymentResultResponse struct {
	PaymentID       string               `json:"payment_id"`
	IdempotencyKey  string               `json:"idempotency_key"`
	Allocations     []AllocationResponse `json:"allocations"`
	TotalAllocated  float64              `json:"total_allocated"`
	CreditID        *string              `json:"credit_id,omitempty"`
	CreditedAmount  float64              `json:"credited_amount"`
	UpdatedInvoices []InvoiceResponse    `json:"updated_invoices"`
}

// PaymentResponse represents a payment record in API responses
type PaymentResponse struct {
	ID              string               `json:"id"`
	ClientID        string               `json:"client_id"`
	Amount          float64              `json:"amount"`
	Method          string               `json:"method"`
	Reference       string               `json:"reference,omitempty"`
	IdempotencyKey  string               `json:"idempotency_key"`
	Status          string               `json:"status"`
	Allocations     []AllocationResponse `json:"allocations"`
	AllocatedAmount float64              `json:"allocated_amount"`
	CreditedAmount  float64              `json:"credited_amount"`
	ReceivedAt      time.Time            `json:"received_at"`
	CommittedAt     *time.Time           `json:"committed_at,omitempty"`
	FailureReason   string               `json:"failure_reason,omitempty"`
}

// AllocationPlanResponse represents a dry-run allocation plan
type AllocationPlanResponse struct {
	Entries               []AllocationResponse `json:"entries"`
	TotalAllocated        float64              `json:"total_allocated"`
	RemainingAmount       float64              `json:"remaining_amount"`
	FullyAllocated        bool                 `json:"fully_allocated"`
	InvoicesFullyPaid     []string             `json:"invoices_fully_paid"`
	InvoicesPartiallyPaid []string             `json:"invoices_partially_paid"`
}

// paymentListQuery binds payment list query parameters
type paymentListQuery struct {
	dto.ListRequest
	ClientID  string `form:"client_id" binding:"omitempty,uuid"`
	Status    string `form:"status"`
	Method    string `form:"method"`
	Reference string `form:"reference"`
}

// ===================== Handlers =====================

// ProcessPayment godoc
// @Summary      Process a payment
// @Description  Applies a payment to the client's target invoices under an
// @Description  idempotency key; any surplus becomes a client credit when
// @Description  allow_overpayment is set
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        request body ProcessPaymentRequest true "Payment request"
// @Success      201 {object} dto.Response{data=PaymentResultResponse}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /payments [post]
func (h *PaymentHandler) ProcessPayment(c *gin.Context) {
	var req ProcessPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	method := billing.PaymentMethod(req.Method)
	if !method.IsValid() {
		h.BadRequest(c, "Invalid payment method")
		return
	}

	var strategy billing.AllocationStrategyType
	if req.Strategy != "" {
		strategy = billing.AllocationStrategyType(req.Strategy)
		if !strategy.IsValid() {
			h.BadRequest(c, "Invalid allocation strategy")
			return
		}
	}

	invoiceIDs := make([]uuid.UUID, len(req.InvoiceIDs))
	for i, raw := range req.InvoiceIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.BadRequest(c, "Invalid invoice ID format")
			return
		}
		invoiceIDs[i] = id
	}

	result, err := h.paymentService.ProcessPayment(c.Request.Context(), billingapp.ProcessPaymentRequest{
		ClientID:         uuid.MustParse(req.ClientID),
		InvoiceIDs:       invoiceIDs,
		Amount:           toDecimal(req.Amount),
		Method:           method,
		Reference:        req.Reference,
		Strategy:         strategy,
		Primary:          toInsuranceAdjustment(req.Primary),
		Secondary:        toInsuranceAdjustment(req.Secondary),
		AllowOverpayment: req.AllowOverpayment,
		ActorID:          getActorID(c),
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, toPaymentResultResponse(result))
}

// ListPayments godoc
// @Summary      List payments
// @Tags         payments
// @Produce      json
// @Param        client_id query string false "Client ID" format(uuid)
// @Param        status query string false "Status"
// @Param        method query string false "Payment method"
// @Param        reference query string false "External reference"
// @Success      200 {object} dto.Response{data=[]PaymentResponse,meta=dto.Meta}
// @Router       /payments [get]
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	var query paymentListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	filter := billing.PaymentFilter{Filter: toSharedFilter(query.ListRequest)}
	if query.ClientID != "" {
		clientID, err := uuid.Parse(query.ClientID)
		if err != nil {
			h.BadRequest(c, "Invalid client ID format")
			return
		}
		filter.ClientID = &clientID
	}
	if query.Status != "" {
		status := billing.PaymentStatus(query.Status)
		if !status.IsValid() {
			h.BadRequest(c, "Invalid payment status")
			return
		}
		filter.Status = &status
	}
	if query.Method != "" {
		method := billing.PaymentMethod(query.Method)
		if !method.IsValid() {
			h.BadRequest(c, "Invalid payment method")
			return
		}
		filter.Method = &method
	}
	if query.Reference != "" {
		filter.Reference = &query.Reference
	}

	payments, total, err := h.paymentService.ListPayments(c.Request.Context(), filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	responses := make([]PaymentResponse, len(payments))
	for i := range payments {
		responses[i] = toPaymentResponse(&payments[i])
	}
	h.SuccessWithMeta(c, responses, total, filter.Page, filter.PageSize)
}

// GetPayment godoc
// @Summary      Get payment by ID
// @Tags         payments
// @Produce      json
// @Param        id path string true "Payment ID" format(uuid)
// @Success      200 {object} dto.Response{data=PaymentResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /payments/{id} [get]
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid payment ID format")
		return
	}

	payment, err := h.paymentService.GetPayment(c.Request.Context(), paymentID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toPaymentResponse(payment))
}

// RefundPayment godoc
// @Summary      Refund part of a committed payment
// @Description  Issues a compensating credit against the source payment;
// @Description  committed allocations are never deleted
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        id path string true "Payment ID" format(uuid)
// @Param        request body RefundPaymentRequest true "Refund request"
// @Success      201 {object} dto.Response{data=RefundResultResponse}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /payments/{id}/refund [post]
func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid payment ID format")
		return
	}

	var req RefundPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.paymentService.RefundPayment(c.Request.Context(), billingapp.RefundPaymentRequest{
		PaymentID: paymentID,
		Amount:    toDecimal(req.Amount),
		Reason:    req.Reason,
		ActorID:   getActorID(c),
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, RefundResultResponse{
		Payment: toPaymentResponse(result.Payment),
		Credit:  toCreditResponse(result.Credit),
	})
}

// PreviewAllocation godoc
// @Summary      Preview a payment allocation
// @Description  Dry-runs the allocation strategy against the client's open
// @Description  invoices without persisting anything
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        request body PreviewAllocationRequest true "Preview request"
// @Success      200 {object} dto.Response{data=AllocationPlanResponse}
// @Router       /payments/preview [post]
func (h *PaymentHandler) PreviewAllocation(c *gin.Context) {
	var req PreviewAllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	var strategy billing.AllocationStrategyType
	if req.Strategy != "" {
		strategy = billing.AllocationStrategyType(req.Strategy)
		if !strategy.IsValid() {
			h.BadRequest(c, "Invalid allocation strategy")
			return
		}
	}

	plan, err := h.paymentService.PreviewAllocation(c.Request.Context(), uuid.MustParse(req.ClientID), toDecimal(req.Amount), strategy)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toAllocationPlanResponse(plan))
}

// ApplyCredits godoc
// @Summary      Apply a client's active credits to an invoice
// @Description  Consumes active credits oldest first until the invoice is
// @Description  paid or the credits run out
// @Tags         payments
// @Produce      json
// @Param        clientId path string true "Client ID" format(uuid)
// @Param        invoiceId path string true "Invoice ID" format(uuid)
// @Success      200 {object} dto.Response{data=PaymentResultResponse}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /clients/{clientId}/invoices/{invoiceId}/apply-credits [post]
func (h *PaymentHandler) ApplyCredits(c *gin.Context) {
	clientID, err := uuid.Parse(c.Param("clientId"))
	if err != nil {
		h.BadRequest(c, "Invalid client ID format")
		return
	}

	invoiceID, err := uuid.Parse(c.Param("invoiceId"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	result, err := h.paymentService.ApplyCreditsToInvoice(c.Request.Context(), clientID, invoiceID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toPaymentResultResponse(result))
}

// ===================== Converters =====================

func toAllocationResponses(allocations []billing.PaymentAllocation) []AllocationResponse {
	responses := make([]AllocationResponse, len(allocations))
	for i, a := range allocations {
		responses[i] = AllocationResponse{
			InvoiceID:     a.InvoiceID.String(),
			InvoiceNumber: a.InvoiceNumber,
			Amount:        a.Amount.InexactFloat64(),
		}
	}
	return responses
}

func toPaymentResultResponse(result *billingapp.ProcessPaymentResult) PaymentResultResponse {
	resp := PaymentResultResponse{
		PaymentID:       result.PaymentID.String(),
		IdempotencyKey:  result.IdempotencyKey,
		Allocations:     toAllocationResponses(result.Allocations),
		TotalAllocated:  result.TotalAllocated.InexactFloat64(),
		CreditedAmount:  result.CreditedAmount.InexactFloat64(),
		UpdatedInvoices: toInvoiceResponses(result.UpdatedInvoices),
	}
	if result.CreditID != nil {
		id := result.CreditID.String()
		resp.CreditID = &id
	}
	return resp
}

func toPaymentResponse(p *billing.Payment) PaymentResponse {
	return PaymentResponse{
		ID:              p.ID.String(),
		ClientID:        p.ClientID.String(),
		Amount:          p.Amount.InexactFloat64(),
		Method:          p.Method.String(),
		Reference:       p.Reference,
		IdempotencyKey:  p.IdempotencyKey,
		Status:          p.Status.String(),
		Allocations:     toAllocationResponses(p.Allocations),
		AllocatedAmount: p.AllocatedAmount.InexactFloat64(),
		CreditedAmount:  p.CreditedAmount.InexactFloat64(),
		ReceivedAt:      p.ReceivedAt,
		CommittedAt:     p.CommittedAt,
		FailureReason:   p.FailureReason,
	}
}

func toAllocationPlanResponse(plan *billing.AllocationPlan) AllocationPlanResponse {
	entries := make([]AllocationResponse, len(plan.Entries))
	for i, e := range plan.Entries {
		entries[i] = AllocationResponse{
			InvoiceID:     e.InvoiceID.String(),
			InvoiceNumber: e.InvoiceNumber,
			Amount:        e.Amount.InexactFloat64(),
		}
	}
	return AllocationPlanResponse{
		Entries:               entries,
		TotalAllocated:        plan.TotalAllocated.InexactFloat64(),
		RemainingAmount:       plan.RemainingAmount.InexactFloat64(),
		FullyAllocated:        plan.FullyAllocated,
		InvoicesFullyPaid:     toIDStrings(plan.InvoicesFullyPaid),
		InvoicesPartiallyPaid: toIDStrings(plan.InvoicesPartiallyPaid),
	}
}

func toIDStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
