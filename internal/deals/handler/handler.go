package handler

import (
	"net/http"

	"portal_usap_backend/internal/deals/domain"
	"portal_usap_backend/internal/deals/repository"
	"portal_usap_backend/internal/deals/service"
	"portal_usap_backend/internal/deals/transport"
	"portal_usap_backend/platform/httpkit"
	"portal_usap_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgNoPartner        = "user is not linked to a partner"
	defaultPageSize     = 20
)

// Handler serves the partner portal's deal views.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a deals handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers deal routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/:id", h.GetByID)
}

func (h *Handler) List(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.ListDealsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return
	}

	partnerID, ok := scopePartner(c, identity, req.PartnerID)
	if !ok {
		return
	}
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = defaultPageSize
	}

	deals, total, err := h.svc.List(c.Request.Context(), repository.ListParams{
		PartnerID: partnerID,
		Stage:     req.Stage,
		Page:      req.Page,
		PageSize:  req.PageSize,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	items := make([]transport.DealResponse, 0, len(deals))
	for _, d := range deals {
		items = append(items, toResponse(d))
	}
	httpkit.OK(c, transport.DealListResponse{Items: items, Total: total, Page: req.Page, PageSize: req.PageSize})
}

func (h *Handler) GetByID(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var scope *uuid.UUID
	if !identity.HasRole(httpkit.RoleAdmin) {
		scope = identity.PartnerID()
		if scope == nil {
			httpkit.Error(c, http.StatusForbidden, msgNoPartner, nil)
			return
		}
	}

	deal, err := h.svc.Get(c.Request.Context(), id, scope)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toResponse(deal))
}

// scopePartner returns the caller's own partner. Operators may pick any
// partner through the query string.
func scopePartner(c *gin.Context, identity httpkit.Identity, requested string) (uuid.UUID, bool) {
	if identity.HasRole(httpkit.RoleAdmin) && requested != "" {
		id, err := uuid.Parse(requested)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return uuid.Nil, false
		}
		return id, true
	}
	if pid := identity.PartnerID(); pid != nil {
		return *pid, true
	}
	httpkit.Error(c, http.StatusForbidden, msgNoPartner, nil)
	return uuid.Nil, false
}

func toResponse(d domain.Deal) transport.DealResponse {
	return transport.DealResponse{
		ID:                  d.ID,
		ExternalID:          d.ExternalID,
		PartnerID:           d.PartnerID,
		CreatedBy:           d.CreatedBy,
		ConvertedFromLeadID: d.ConvertedFromLeadID,
		Name:                d.Name,
		FirstName:           d.FirstName,
		LastName:            d.LastName,
		Email:               d.Email,
		Phone:               d.Phone,
		Company:             d.Company,
		Stage:               string(d.Stage),
		ExternalStage:       d.ExternalStageRaw,
		ApprovalDate:        d.ApprovalDate,
		LastSyncAt:          d.LastSyncAt,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
}
