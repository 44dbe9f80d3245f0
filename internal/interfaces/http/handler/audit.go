package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	billingapp "github.com/labbill/backend/internal/application/billing"
	"github.com/labbill/backend/internal/domain/billing"
	"github.com/labbill/backend/internal/interfaces/http/dto"
)

// AuditHandler handles audit trail API endpoints
type AuditHandler struct {
	BaseHandler
	auditService *billingapp.AuditService
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(auditService *billingapp.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

// RegisterRoutes registers audit routes
func (h *AuditHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/audit", h.ListEntries)
}

// AuditEntryResponse represents an audit entry in API responses
type AuditEntryResponse struct {
	ID         string                 `json:"id"`
	Action     string                 `json:"action"`
	EntityType string                 `json:"entity_type"`
	EntityID   string                 `json:"entity_id"`
	ClientID   *string                `json:"client_id,omitempty"`
	Detail     map[string]interface{} `json:"detail,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// auditListQuery binds audit list query parameters
type auditListQuery struct {
	dto.ListRequest
	Action     string `form:"action"`
	EntityType string `form:"entity_type"`
	EntityID   string `form:"entity_id" binding:"omitempty,uuid"`
	ClientID   string `form:"client_id" binding:"omitempty,uuid"`
}

// ListEntries godoc
// @Summary      List audit entries
// @Description  Returns billing audit entries, newest first
// @Tags         audit
// @Produce      json
// @Param        action query string false "Action name"
// @Param        entity_type query string false "Entity type"
// @Param        entity_id query string false "Entity ID" format(uuid)
// @Param        client_id query string false "Client ID" format(uuid)
// @Success      200 {object} dto.Response{data=[]AuditEntryResponse,meta=dto.Meta}
// @Router       /audit [get]
func (h *AuditHandler) ListEntries(c *gin.Context) {
	var query auditListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	filter := billing.AuditFilter{Filter: toSharedFilter(query.ListRequest)}
	if query.Action != "" {
		filter.Action = &query.Action
	}
	if query.EntityType != "" {
		filter.EntityType = &query.EntityType
	}
	if query.EntityID != "" {
		entityID, err := uuid.Parse(query.EntityID)
		if err != nil {
			h.BadRequest(c, "Invalid entity ID format")
			return
		}
		filter.EntityID = &entityID
	}
	if query.ClientID != "" {
		clientID, err := uuid.Parse(query.ClientID)
		if err != nil {
			h.BadRequest(c, "Invalid client ID format")
			return
		}
		filter.ClientID = &clientID
	}

	entries, total, err := h.auditService.ListEntries(c.Request.Context(), filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	responses := make([]AuditEntryResponse, len(entries))
	for i := range entries {
		responses[i] = toAuditEntryResponse(&entries[i])
	}
	h.SuccessWithMeta(c, responses, total, filter.Page, filter.PageSize)
}

func toAuditEntryResponse(entry *billing.AuditEntry) AuditEntryResponse {
	resp := AuditEntryResponse{
		ID:         entry.ID.String(),
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID.String(),
		Detail:     entry.Detail,
		OccurredAt: entry.OccurredAt,
	}
	if entry.ClientID != nil {
		id := entry.ClientID.String()
		resp.ClientID = &id
	}
	return resp
}
