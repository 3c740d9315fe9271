package handler

import (
	"net/http"

	"portal_usap_backend/internal/partners/repository"
	"portal_usap_backend/internal/partners/service"
	"portal_usap_backend/internal/partners/transport"
	"portal_usap_backend/platform/httpkit"
	"portal_usap_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles admin HTTP requests for partners.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new partners handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers partner routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/:id", h.GetByID)
	rg.PATCH("/:id/approval", h.SetApproval)
}

func (h *Handler) List(c *gin.Context) {
	partners, err := h.svc.List(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	items := make([]transport.PartnerResponse, 0, len(partners))
	for _, p := range partners {
		items = append(items, toResponse(p))
	}
	httpkit.OK(c, gin.H{"items": items})
}

func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	partner, err := h.svc.GetByID(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toResponse(partner))
}

func (h *Handler) SetApproval(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	var req transport.SetApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return
	}

	partner, err := h.svc.SetApproved(c.Request.Context(), id, *req.Approved)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toResponse(partner))
}

func toResponse(p repository.Partner) transport.PartnerResponse {
	return transport.PartnerResponse{
		ID:         p.ID,
		ExternalID: p.ExternalID,
		Name:       p.Name,
		Email:      p.Email,
		Approved:   p.Approved,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}
