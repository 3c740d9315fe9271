package handler

import (
	"net/http"

	"portal_usap_backend/internal/leads/domain"
	"portal_usap_backend/internal/leads/repository"
	"portal_usap_backend/internal/leads/service"
	"portal_usap_backend/internal/leads/transport"
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

type Handler struct {
	svc *service.Service
	val *validator.Validator
}

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:id", h.GetByID)
	rg.PATCH("/:id/status", h.UpdateStatus)
}

func (h *Handler) Create(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.CreateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
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

	lead, err := h.svc.Create(c.Request.Context(), service.CreateInput{
		PartnerID: partnerID,
		UserID:    identity.UserID(),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		Company:   req.Company,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, toResponse(lead))
}

func (h *Handler) List(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.ListLeadsRequest
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

	leads, total, err := h.svc.List(c.Request.Context(), repository.ListParams{
		PartnerID: partnerID,
		Status:    req.Status,
		Page:      req.Page,
		PageSize:  req.PageSize,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	items := make([]transport.LeadResponse, 0, len(leads))
	for _, l := range leads {
		items = append(items, toResponse(l))
	}
	httpkit.OK(c, transport.LeadListResponse{Items: items, Total: total, Page: req.Page, PageSize: req.PageSize})
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
	scope, ok := readScope(c, identity)
	if !ok {
		return
	}

	lead, err := h.svc.Get(c.Request.Context(), id, scope)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toResponse(lead))
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.UpdateLeadStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return
	}
	scope, ok := readScope(c, identity)
	if !ok {
		return
	}

	lead, err := h.svc.UpdateStatus(c.Request.Context(), id, scope, identity.UserID(), domain.Status(req.Status))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toResponse(lead))
}

// scopePartner returns the partner a request acts for. Operators may name any
// partner; everyone else is pinned to their own.
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

// readScope returns nil for operators.
func readScope(c *gin.Context, identity httpkit.Identity) (*uuid.UUID, bool) {
	if identity.HasRole(httpkit.RoleAdmin) {
		return nil, true
	}
	if pid := identity.PartnerID(); pid != nil {
		return pid, true
	}
	httpkit.Error(c, http.StatusForbidden, msgNoPartner, nil)
	return nil, false
}

func toResponse(l domain.Lead) transport.LeadResponse {
	return transport.LeadResponse{
		ID:             l.ID,
		ExternalID:     l.ExternalID,
		PartnerID:      l.PartnerID,
		CreatedBy:      l.CreatedBy,
		FirstName:      l.FirstName,
		LastName:       l.LastName,
		Email:          l.Email,
		Phone:          l.Phone,
		Company:        l.Company,
		Status:         string(l.Status),
		ExternalStatus: l.ExternalStatusRaw,
		SyncState:      string(l.SyncState),
		LastSyncAt:     l.LastSyncAt,
		CreatedAt:      l.CreatedAt,
		UpdatedAt:      l.UpdatedAt,
	}
}
