package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	billingapp "github.com/labbill/backend/internal/application/billing"
	"github.com/labbill/backend/internal/domain/billing"
	"github.com/labbill/backend/internal/interfaces/http/dto"
)

// InvoiceHandler handles invoice-related API endpoints
type InvoiceHandler struct {
	BaseHandler
	invoiceService *billingapp.InvoiceService
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(invoiceService *billingapp.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoiceService: invoiceService}
}

// RegisterRoutes registers invoice routes
func (h *InvoiceHandler) RegisterRoutes(rg *gin.RouterGroup) {
	invoices := rg.Group("/invoices")
	{
		invoices.POST("", h.CreateInvoice)
		invoices.GET("", h.ListInvoices)
		invoices.POST("/calculate", h.CalculateTotals)
		invoices.GET("/:id", h.GetInvoice)
		invoices.POST("/:id/items", h.AddLineItem)
		invoices.DELETE("/:id/items/:itemId", h.RemoveLineItem)
		invoices.POST("/:id/finalize", h.FinalizeInvoice)
		invoices.POST("/:id/cancel", h.CancelInvoice)
		invoices.POST("/:id/benefits", h.CalculateBenefits)
	}
	rg.POST("/insurance/coordinate", h.CoordinateBenefits)
	rg.GET("/clients/:clientId/balance", h.GetClientBalance)
}

// ===================== Request/Response DTOs =====================

// LineItemResponse represents a line item in API responses
type LineItemResponse struct {
	ID           string    `json:"id"`
	ServiceCode  string    `json:"service_code"`
	Description  string    `json:"description,omitempty"`
	ServiceDate  time.Time `json:"service_date"`
	Quantity     float64   `json:"quantity"`
	UnitPrice    float64   `json:"unit_price"`
	DiscountRate float64   `json:"discount_rate"`
	TaxRate      float64   `json:"tax_rate"`
	LineSubtotal float64   `json:"line_subtotal"`
	LineDiscount float64   `json:"line_discount"`
	LineTax      float64   `json:"line_tax"`
	LineTotal    float64   `json:"line_total"`
}

// InvoiceResponse represents an invoice in API responses
type InvoiceResponse struct {
	ID            string             `json:"id"`
	InvoiceNumber string             `json:"invoice_number,omitempty"`
	ClientID      string             `json:"client_id"`
	ClientName    string             `json:"client_name"`
	LineItems     []LineItemResponse `json:"line_items"`
	Subtotal      float64            `json:"subtotal"`
	TotalDiscount float64            `json:"total_discount"`
	TotalTax      float64            `json:"total_tax"`
	Total         float64            `json:"total"`
	PaidAmount    float64            `json:"paid_amount"`
	BalanceDue    float64            `json:"balance_due"`
	Status        string             `json:"status"`
	DueDate       *time.Time         `json:"due_date,omitempty"`
	IssuedAt      *time.Time         `json:"issued_at,omitempty"`
	PaidAt        *time.Time         `json:"paid_at,omitempty"`
	CancelledAt   *time.Time         `json:"cancelled_at,omitempty"`
	CancelReason  string             `json:"cancel_reason,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	Version       int                `json:"version"`
}

// CalculateTotalsRequest represents a standalone invoice valuation request.
// ClientID is optional; when set, the client's contract prices are used.
type CalculateTotalsRequest struct {
	ClientID  *uuid.UUID                   `json:"client_id"`
	LineItems []billingapp.LineItemRequest `json:"line_items" binding:"required"`
}

// LineItemResultResponse represents the derived amounts of one line item
type LineItemResultResponse struct {
	LineItemID     string  `json:"line_item_id"`
	LineTotal      float64 `json:"line_total"`
	DiscountAmount float64 `json:"discount_amount"`
	TaxAmount      float64 `json:"tax_amount"`
	FinalAmount    float64 `json:"final_amount"`
}

// InvoiceTotalsResponse represents aggregated invoice totals
type InvoiceTotalsResponse struct {
	Subtotal      float64                  `json:"subtotal"`
	TotalDiscount float64                  `json:"total_discount"`
	TotalTax      float64                  `json:"total_tax"`
	Total         float64                  `json:"total"`
	Items         []LineItemResultResponse `json:"items"`
}

// CoordinateBenefitsRequest represents a standalone benefits coordination
// request against a raw charge total
type CoordinateBenefitsRequest struct {
	Total     float64                     `json:"total" binding:"min=0"`
	Primary   *InsuranceAdjustmentRequest `json:"primary"`
	Secondary *InsuranceAdjustmentRequest `json:"secondary"`
}

// CancelInvoiceRequest represents an invoice cancellation request
type CancelInvoiceRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// BenefitsRequest represents an insurance benefits calculation request
type BenefitsRequest struct {
	Primary   *InsuranceAdjustmentRequest `json:"primary" binding:"required"`
	Secondary *InsuranceAdjustmentRequest `json:"secondary"`
}

// InsuranceAdjustmentRequest represents one payer's benefit rules.
// CoveragePercent is a fraction in [0, 1], not a percentage.
type InsuranceAdjustmentRequest struct {
	PayerName       string  `json:"payer_name" binding:"required"`
	CoveragePercent float64 `json:"coverage_percent" binding:"min=0,max=1"`
	Deductible      float64 `json:"deductible" binding:"min=0"`
	Copay           float64 `json:"copay" binding:"min=0"`
	MaxBenefit      float64 `json:"max_benefit" binding:"min=0"`
}

// CoverageResultResponse represents one payer's coverage outcome
type CoverageResultResponse struct {
	DeductibleApplied     float64 `json:"deductible_applied"`
	CoveredAmount         float64 `json:"covered_amount"`
	PatientResponsibility float64 `json:"patient_responsibility"`
}

// BenefitsResponse represents a coordinated benefits calculation
type BenefitsResponse struct {
	GrossTotal            float64                 `json:"gross_total"`
	Primary               *CoverageResultResponse `json:"primary,omitempty"`
	Secondary             *CoverageResultResponse `json:"secondary,omitempty"`
	TotalCovered          float64                 `json:"total_covered"`
	PatientResponsibility float64                 `json:"patient_responsibility"`
}

// BalanceResponse represents a client's outstanding balance
type BalanceResponse struct {
	ClientID string  `json:"client_id"`
	Balance  float64 `json:"balance"`
}

// invoiceListQuery binds invoice list query parameters
type invoiceListQuery struct {
	dto.ListRequest
	ClientID string `form:"client_id" binding:"omitempty,uuid"`
	Status   string `form:"status"`
	Overdue  *bool  `form:"overdue"`
}

// ===================== Handlers =====================

// CreateInvoice godoc
// @Summary      Create a draft invoice
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        request body billingapp.CreateInvoiceRequest true "Invoice creation request"
// @Success      201 {object} dto.Response{data=InvoiceResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /invoices [post]
func (h *InvoiceHandler) CreateInvoice(c *gin.Context) {
	var req billingapp.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	invoice, err := h.invoiceService.CreateInvoice(c.Request.Context(), req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, toInvoiceResponse(invoice))
}

// ListInvoices godoc
// @Summary      List invoices
// @Tags         invoices
// @Produce      json
// @Param        client_id query string false "Client ID" format(uuid)
// @Param        status query string false "Status" Enums(DRAFT, SENT, PARTIAL, PAID, OVERDUE, CANCELLED)
// @Param        overdue query boolean false "Filter overdue only"
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20) maximum(100)
// @Success      200 {object} dto.Response{data=[]InvoiceResponse,meta=dto.Meta}
// @Router       /invoices [get]
func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	var query invoiceListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	filter := billing.InvoiceFilter{Filter: toSharedFilter(query.ListRequest)}
	if query.ClientID != "" {
		clientID, err := uuid.Parse(query.ClientID)
		if err != nil {
			h.BadRequest(c, "Invalid client ID format")
			return
		}
		filter.ClientID = &clientID
	}
	if query.Status != "" {
		status := billing.InvoiceStatus(query.Status)
		if !status.IsValid() {
			h.BadRequest(c, "Invalid invoice status")
			return
		}
		filter.Status = &status
	}
	filter.Overdue = query.Overdue

	invoices, total, err := h.invoiceService.ListInvoices(c.Request.Context(), filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.SuccessWithMeta(c, toInvoiceResponses(invoices), total, filter.Page, filter.PageSize)
}

// GetInvoice godoc
// @Summary      Get invoice by ID
// @Tags         invoices
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Success      200 {object} dto.Response{data=InvoiceResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /invoices/{id} [get]
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	invoice, err := h.invoiceService.GetInvoice(c.Request.Context(), invoiceID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toInvoiceResponse(invoice))
}

// AddLineItem godoc
// @Summary      Add a line item to a draft invoice
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        request body billingapp.LineItemRequest true "Line item request"
// @Success      200 {object} dto.Response{data=InvoiceResponse}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /invoices/{id}/items [post]
func (h *InvoiceHandler) AddLineItem(c *gin.Context) {
	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	var req billingapp.LineItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	invoice, err := h.invoiceService.AddLineItem(c.Request.Context(), invoiceID, req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toInvoiceResponse(invoice))
}

// RemoveLineItem godoc
// @Summary      Remove a line item from a draft invoice
// @Tags         invoices
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        itemId path string true "Line item ID" format(uuid)
// @Success      200 {object} dto.Response{data=InvoiceResponse}
// @Router       /invoices/{id}/items/{itemId} [delete]
func (h *InvoiceHandler) RemoveLineItem(c *gin.Context) {
	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	itemID, err := uuid.Parse(c.Param("itemId"))
	if err != nil {
		h.BadRequest(c, "Invalid line item ID format")
		return
	}

	invoice, err := h.invoiceService.RemoveLineItem(c.Request.Context(), invoiceID, itemID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toInvoiceResponse(invoice))
}

// FinalizeInvoice godoc
// @Summary      Finalize a draft invoice
// @Description  Assigns the invoice number and opens the invoice for payment
// @Tags         invoices
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Success      200 {object} dto.Response{data=InvoiceResponse}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /invoices/{id}/finalize [post]
func (h *InvoiceHandler) FinalizeInvoice(c *gin.Context) {
	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	invoice, err := h.invoiceService.FinalizeInvoice(c.Request.Context(), invoiceID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toInvoiceResponse(invoice))
}

// CancelInvoice godoc
// @Summary      Cancel an invoice
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        request body CancelInvoiceRequest true "Cancellation request"
// @Success      200 {object} dto.Response{data=InvoiceResponse}
// @Router       /invoices/{id}/cancel [post]
func (h *InvoiceHandler) CancelInvoice(c *gin.Context) {
	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	var req CancelInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	invoice, err := h.invoiceService.CancelInvoice(c.Request.Context(), invoiceID, req.Reason)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toInvoiceResponse(invoice))
}

// CalculateBenefits godoc
// @Summary      Preview insurance benefits for an invoice
// @Description  Calculates coordinated coverage without mutating the invoice
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        request body BenefitsRequest true "Benefit rules"
// @Success      200 {object} dto.Response{data=BenefitsResponse}
// @Router       /invoices/{id}/benefits [post]
func (h *InvoiceHandler) CalculateBenefits(c *gin.Context) {
	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	var req BenefitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	primary := toInsuranceAdjustment(req.Primary)
	secondary := toInsuranceAdjustment(req.Secondary)

	result, err := h.invoiceService.CalculateBenefits(c.Request.Context(), invoiceID, primary, secondary)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toBenefitsResponse(result))
}

// CalculateTotals godoc
// @Summary      Value a set of line items
// @Description  Computes line and invoice totals without creating an invoice;
// @Description  items without a unit price are priced through the price list
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        request body CalculateTotalsRequest true "Line items"
// @Success      200 {object} dto.Response{data=InvoiceTotalsResponse}
// @Router       /invoices/calculate [post]
func (h *InvoiceHandler) CalculateTotals(c *gin.Context) {
	var req CalculateTotalsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	clientID := uuid.Nil
	if req.ClientID != nil {
		clientID = *req.ClientID
	}
	totals, err := h.invoiceService.CalculateTotals(c.Request.Context(), clientID, req.LineItems)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toInvoiceTotalsResponse(totals))
}

// CoordinateBenefits godoc
// @Summary      Coordinate insurance benefits for a charge
// @Description  Applies primary then secondary payer rules to a raw charge
// @Description  total; the secondary payer covers only what remains after
// @Description  the primary
// @Tags         insurance
// @Accept       json
// @Produce      json
// @Param        request body CoordinateBenefitsRequest true "Charge and payer rules"
// @Success      200 {object} dto.Response{data=BenefitsResponse}
// @Router       /insurance/coordinate [post]
func (h *InvoiceHandler) CoordinateBenefits(c *gin.Context) {
	var req CoordinateBenefitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.invoiceService.CoordinateBenefits(
		toDecimal(req.Total),
		toInsuranceAdjustment(req.Primary),
		toInsuranceAdjustment(req.Secondary),
	)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toBenefitsResponse(result))
}

// GetClientBalance godoc
// @Summary      Get a client's outstanding balance
// @Tags         invoices
// @Produce      json
// @Param        clientId path string true "Client ID" format(uuid)
// @Success      200 {object} dto.Response{data=BalanceResponse}
// @Router       /clients/{clientId}/balance [get]
func (h *InvoiceHandler) GetClientBalance(c *gin.Context) {
	clientID, err := uuid.Parse(c.Param("clientId"))
	if err != nil {
		h.BadRequest(c, "Invalid client ID format")
		return
	}

	balance, err := h.invoiceService.GetClientBalance(c.Request.Context(), clientID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, BalanceResponse{
		ClientID: clientID.String(),
		Balance:  balance.InexactFloat64(),
	})
}

// ===================== Converters =====================

func toInvoiceResponse(inv *billing.Invoice) InvoiceResponse {
	items := make([]LineItemResponse, len(inv.LineItems))
	for i := range inv.LineItems {
		li := &inv.LineItems[i]
		items[i] = LineItemResponse{
			ID:           li.ID.String(),
			ServiceCode:  li.ServiceCode,
			Description:  li.Description,
			ServiceDate:  li.ServiceDate,
			Quantity:     li.Quantity.InexactFloat64(),
			UnitPrice:    li.UnitPrice.InexactFloat64(),
			DiscountRate: li.DiscountRate.InexactFloat64(),
			TaxRate:      li.TaxRate.InexactFloat64(),
		}
		// Amounts are derived, not stored; items on a persisted invoice
		// already passed validation so this cannot fail for them
		if calc, err := billing.CalculateLineItem(li); err == nil {
			items[i].LineSubtotal = calc.LineTotal.InexactFloat64()
			items[i].LineDiscount = calc.DiscountAmount.InexactFloat64()
			items[i].LineTax = calc.TaxAmount.InexactFloat64()
			items[i].LineTotal = calc.FinalAmount.InexactFloat64()
		}
	}

	return InvoiceResponse{
		ID:            inv.ID.String(),
		InvoiceNumber: inv.InvoiceNumber,
		ClientID:      inv.ClientID.String(),
		ClientName:    inv.ClientName,
		LineItems:     items,
		Subtotal:      inv.Subtotal.InexactFloat64(),
		TotalDiscount: inv.TotalDiscount.InexactFloat64(),
		TotalTax:      inv.TotalTax.InexactFloat64(),
		Total:         inv.Total.InexactFloat64(),
		PaidAmount:    inv.PaidAmount.InexactFloat64(),
		BalanceDue:    inv.BalanceDue().InexactFloat64(),
		Status:        inv.Status.String(),
		DueDate:       inv.DueDate,
		IssuedAt:      inv.IssuedAt,
		PaidAt:        inv.PaidAt,
		CancelledAt:   inv.CancelledAt,
		CancelReason:  inv.CancelReason,
		CreatedAt:     inv.CreatedAt,
		UpdatedAt:     inv.UpdatedAt,
		Version:       inv.Version,
	}
}

func toInvoiceResponses(invoices []billing.Invoice) []InvoiceResponse {
	responses := make([]InvoiceResponse, len(invoices))
	for i := range invoices {
		responses[i] = toInvoiceResponse(&invoices[i])
	}
	return responses
}

func toInvoiceTotalsResponse(totals *billing.InvoiceTotals) InvoiceTotalsResponse {
	items := make([]LineItemResultResponse, len(totals.Items))
	for i, item := range totals.Items {
		items[i] = LineItemResultResponse{
			LineItemID:     item.LineItemID.String(),
			LineTotal:      item.LineTotal.InexactFloat64(),
			DiscountAmount: item.DiscountAmount.InexactFloat64(),
			TaxAmount:      item.TaxAmount.InexactFloat64(),
			FinalAmount:    item.FinalAmount.InexactFloat64(),
		}
	}

	return InvoiceTotalsResponse{
		Subtotal:      totals.Subtotal.InexactFloat64(),
		TotalDiscount: totals.TotalDiscount.InexactFloat64(),
		TotalTax:      totals.TotalTax.InexactFloat64(),
		Total:         totals.Total.InexactFloat64(),
		Items:         items,
	}
}

func toInsuranceAdjustment(req *InsuranceAdjustmentRequest) *billing.InsuranceAdjustment {
	if req == nil {
		return nil
	}
	return &billing.InsuranceAdjustment{
		PayerName:       req.PayerName,
		CoveragePercent: toDecimal(req.CoveragePercent),
		Deductible:      toDecimal(req.Deductible),
		Copay:           toDecimal(req.Copay),
		MaxBenefit:      toDecimal(req.MaxBenefit),
	}
}

func toCoverageResultResponse(r billing.CoverageResult) CoverageResultResponse {
	return CoverageResultResponse{
		DeductibleApplied:     r.DeductibleApplied.InexactFloat64(),
		CoveredAmount:         r.CoveredAmount.InexactFloat64(),
		PatientResponsibility: r.PatientResponsibility.InexactFloat64(),
	}
}

func toBenefitsResponse(result *billing.BenefitsResult) BenefitsResponse {
	resp := BenefitsResponse{
		GrossTotal:            result.GrossTotal.InexactFloat64(),
		TotalCovered:          result.TotalCovered.InexactFloat64(),
		PatientResponsibility: result.PatientResponsibility.InexactFloat64(),
	}
	if result.Primary != nil {
		primary := toCoverageResultResponse(*result.Primary)
		resp.Primary = &primary
	}
	if result.Secondary != nil {
		secondary := toCoverageResultResponse(*result.Secondary)
		resp.Secondary = &secondary
	}
	return resp
}
