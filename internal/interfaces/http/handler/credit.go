package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	billingapp "github.com/labbill/backend/internal/application/billing"
	"github.com/labbill/backend/internal/domain/billing"
	"github.com/labbill/backend/internal/interfaces/http/dto"
)

// CreditHandler handles client credit API endpoints
type CreditHandler struct {
	BaseHandler
	creditService *billingapp.CreditService
}

// NewCreditHandler creates a new CreditHandler
func NewCreditHandler(creditService *billingapp.CreditService) *CreditHandler {
	return &CreditHandler{creditService: creditService}
}

// RegisterRoutes registers credit routes
func (h *CreditHandler) RegisterRoutes(rg *gin.RouterGroup) {
	credits := rg.Group("/credits")
	{
		credits.POST("", h.IssueCredit)
		credits.GET("", h.ListCredits)
		credits.GET("/:id", h.GetCredit)
		credits.POST("/:id/cancel", h.CancelCredit)
	}
	rg.GET("/clients/:clientId/credits", h.ListClientCredits)
	rg.GET("/clients/:clientId/credit-balance", h.GetCreditBalance)
}

// ===================== Request/Response DTOs =====================

// IssueCreditRequest represents a manual credit issuance request
type IssueCreditRequest struct {
	ClientID        string     `json:"client_id" binding:"required,uuid"`
	SourcePaymentID string     `json:"source_payment_id" binding:"omitempty,uuid"`
	Amount          float64    `json:"amount" binding:"required,gt=0"`
	Reason          string     `json:"reason" binding:"required"`
	ExpiresAt       *time.Time `json:"expires_at"`
}

// CancelCreditRequest represents a credit cancellation request
type CancelCreditRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// CreditResponse represents a credit in API responses
type CreditResponse struct {
	ID              string     `json:"id"`
	ClientID        string     `json:"client_id"`
	SourcePaymentID string     `json:"source_payment_id,omitempty"`
	Amount          float64    `json:"amount"`
	RemainingAmount float64    `json:"remaining_amount"`
	Status          string     `json:"status"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	UsedAt          *time.Time `json:"used_at,omitempty"`
	ExpiredAt       *time.Time `json:"expired_at,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	CancelReason    string     `json:"cancel_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// CreditBalanceResponse represents a client's usable credit balance
type CreditBalanceResponse struct {
	ClientID string  `json:"client_id"`
	Balance  float64 `json:"balance"`
}

// creditListQuery binds credit list query parameters
type creditListQuery struct {
	dto.ListRequest
	ClientID string `form:"client_id" binding:"omitempty,uuid"`
	Status   string `form:"status"`
}

// ===================== Handlers =====================

// IssueCredit godoc
// @Summary      Issue a credit
// @Description  Creates a credit outside the overpayment path, for refunds
// @Description  and goodwill adjustments. A reason is mandatory.
// @Tags         credits
// @Accept       json
// @Produce      json
// @Param        request body IssueCreditRequest true "Credit issuance request"
// @Success      201 {object} dto.Response{data=CreditResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /credits [post]
func (h *CreditHandler) IssueCredit(c *gin.Context) {
	var req IssueCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	appReq := billingapp.IssueCreditRequest{
		ClientID:  uuid.MustParse(req.ClientID),
		Amount:    toDecimal(req.Amount),
		Reason:    req.Reason,
		ExpiresAt: req.ExpiresAt,
		ActorID:   getActorID(c),
	}
	if req.SourcePaymentID != "" {
		appReq.SourcePaymentID = uuid.MustParse(req.SourcePaymentID)
	}

	credit, err := h.creditService.IssueCredit(c.Request.Context(), appReq)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, toCreditResponse(credit))
}

// ListCredits godoc
// @Summary      List credits
// @Tags         credits
// @Produce      json
// @Param        client_id query string false "Client ID" format(uuid)
// @Param        status query string false "Status" Enums(ACTIVE, USED, EXPIRED, CANCELLED)
// @Success      200 {object} dto.Response{data=[]CreditResponse}
// @Router       /credits [get]
func (h *CreditHandler) ListCredits(c *gin.Context) {
	var query creditListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	filter := billing.CreditFilter{Filter: toSharedFilter(query.ListRequest)}
	if query.ClientID != "" {
		clientID, err := uuid.Parse(query.ClientID)
		if err != nil {
			h.BadRequest(c, "Invalid client ID format")
			return
		}
		filter.ClientID = &clientID
	}
	if query.Status != "" {
		status := billing.CreditStatus(query.Status)
		if !status.IsValid() {
			h.BadRequest(c, "Invalid credit status")
			return
		}
		filter.Status = &status
	}

	credits, err := h.creditService.ListCredits(c.Request.Context(), filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	responses := make([]CreditResponse, len(credits))
	for i := range credits {
		responses[i] = toCreditResponse(&credits[i])
	}
	h.Success(c, responses)
}

// GetCredit godoc
// @Summary      Get credit by ID
// @Tags         credits
// @Produce      json
// @Param        id path string true "Credit ID" format(uuid)
// @Success      200 {object} dto.Response{data=CreditResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /credits/{id} [get]
func (h *CreditHandler) GetCredit(c *gin.Context) {
	creditID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid credit ID format")
		return
	}

	credit, err := h.creditService.GetCredit(c.Request.Context(), creditID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toCreditResponse(credit))
}

// CancelCredit godoc
// @Summary      Cancel an active credit
// @Tags         credits
// @Accept       json
// @Produce      json
// @Param        id path string true "Credit ID" format(uuid)
// @Param        request body CancelCreditRequest true "Cancellation request"
// @Success      200 {object} dto.Response{data=CreditResponse}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /credits/{id}/cancel [post]
func (h *CreditHandler) CancelCredit(c *gin.Context) {
	creditID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid credit ID format")
		return
	}

	var req CancelCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	credit, err := h.creditService.CancelCredit(c.Request.Context(), creditID, req.Reason)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toCreditResponse(credit))
}

// ListClientCredits godoc
// @Summary      List a client's credits
// @Tags         credits
// @Produce      json
// @Param        clientId path string true "Client ID" format(uuid)
// @Param        status query string false "Status" Enums(ACTIVE, USED, EXPIRED, CANCELLED)
// @Success      200 {object} dto.Response{data=[]CreditResponse}
// @Router       /clients/{clientId}/credits [get]
func (h *CreditHandler) ListClientCredits(c *gin.Context) {
	clientID, err := uuid.Parse(c.Param("clientId"))
	if err != nil {
		h.BadRequest(c, "Invalid client ID format")
		return
	}

	var query creditListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	filter := billing.CreditFilter{Filter: toSharedFilter(query.ListRequest)}
	filter.ClientID = &clientID
	if query.Status != "" {
		status := billing.CreditStatus(query.Status)
		if !status.IsValid() {
			h.BadRequest(c, "Invalid credit status")
			return
		}
		filter.Status = &status
	}

	credits, err := h.creditService.ListCredits(c.Request.Context(), filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	responses := make([]CreditResponse, len(credits))
	for i := range credits {
		responses[i] = toCreditResponse(&credits[i])
	}
	h.Success(c, responses)
}

// GetCreditBalance godoc
// @Summary      Get a client's usable credit balance
// @Tags         credits
// @Produce      json
// @Param        clientId path string true "Client ID" format(uuid)
// @Success      200 {object} dto.Response{data=CreditBalanceResponse}
// @Router       /clients/{clientId}/credit-balance [get]
func (h *CreditHandler) GetCreditBalance(c *gin.Context) {
	clientID, err := uuid.Parse(c.Param("clientId"))
	if err != nil {
		h.BadRequest(c, "Invalid client ID format")
		return
	}

	balance, err := h.creditService.GetCreditBalance(c.Request.Context(), clientID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, CreditBalanceResponse{
		ClientID: clientID.String(),
		Balance:  balance.InexactFloat64(),
	})
}

// ===================== Converters =====================

func toCreditResponse(credit *billing.Credit) CreditResponse {
	resp := CreditResponse{
		ID:              credit.ID.String(),
		ClientID:        credit.ClientID.String(),
		Amount:          credit.Amount.InexactFloat64(),
		RemainingAmount: credit.RemainingAmount.InexactFloat64(),
		Status:          credit.Status.String(),
		ExpiresAt:       credit.ExpiresAt,
		UsedAt:          credit.UsedAt,
		ExpiredAt:       credit.ExpiredAt,
		CancelledAt:     credit.CancelledAt,
		CancelReason:    credit.CancelReason,
		CreatedAt:       credit.CreatedAt,
		UpdatedAt:       credit.UpdatedAt,
	}
	if credit.SourcePaymentID != uuid.Nil {
		resp.SourcePaymentID = credit.SourcePaymentID.String()
	}
	return resp
}
