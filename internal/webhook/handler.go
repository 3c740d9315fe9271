package webhook

import (
	"errors"
	"net/http"

	"portal_usap_backend/platform/apperr"
	"portal_usap_backend/platform/httpkit"
	"portal_usap_backend/platform/logger"
	"portal_usap_backend/platform/metrics"
	"portal_usap_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	errInvalidRequest = "invalid request body"
	errValidation     = "validation error"
)

// Handler handles inbound CRM webhook requests.
type Handler struct {
	service *Service
	val     *validator.Validator
	log     *logger.Logger
}

// NewHandler creates a new webhook handler.
func NewHandler(service *Service, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{service: service, val: val, log: log}
}

type successResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// HandlePartner provisions a partner.
// POST /api/v1/webhooks/zoho/partner
func (h *Handler) HandlePartner(c *gin.Context) {
	var req PartnerPayload
	if !h.bind(c, KindPartner, &req, true) {
		return
	}
	res, err := h.service.HandlePartner(c.Request.Context(), req)
	if h.fail(c, KindPartner, err, "externalId", req.ID) {
		return
	}
	h.succeed(c, KindPartner, res, "partnerId", res.PartnerID, "created", res.Created)
}

// HandleLeadStatus applies a lead status change.
// POST /api/v1/webhooks/zoho/lead-status
func (h *Handler) HandleLeadStatus(c *gin.Context) {
	var req LeadStatusPayload
	if !h.bind(c, KindLeadStatus, &req, true) {
		return
	}
	res, err := h.service.HandleLeadStatus(c.Request.Context(), req)
	if h.fail(c, KindLeadStatus, err, "externalId", req.ID, "leadStatus", req.LeadStatus) {
		return
	}
	h.succeed(c, KindLeadStatus, res, "leadId", res.LeadID, "result", res.Outcome)
}

// HandleDeal creates or updates a deal.
// POST /api/v1/webhooks/zoho/deal
func (h *Handler) HandleDeal(c *gin.Context) {
	var req DealPayload
	if !h.bind(c, KindDeal, &req, false) {
		return
	}
	res, err := h.service.HandleDeal(c.Request.Context(), req)
	if h.fail(c, KindDeal, err, "zohoDealId", req.DealID(), "payload", req) {
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	metrics.RecordWebhookEvent(KindDeal, "ok")
	h.log.WithContext(c.Request.Context()).WebhookEvent(KindDeal, "ok", "dealId", res.DealID, "created", res.Created)
	c.JSON(status, successResponse{Success: true, Data: res})
}

func (h *Handler) bind(c *gin.Context, kind string, dst any, validate bool) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.reject(c, kind, http.StatusBadRequest, errInvalidRequest, nil)
		return false
	}
	if !validate {
		return true
	}
	if err := h.val.Struct(dst); err != nil {
		h.reject(c, kind, http.StatusBadRequest, errValidation, validator.FieldErrors(err))
		return false
	}
	return true
}

func (h *Handler) reject(c *gin.Context, kind string, status int, msg string, details any) {
	metrics.RecordWebhookEvent(kind, "rejected")
	h.log.WithContext(c.Request.Context()).WebhookEvent(kind, "rejected", "reason", msg)
	httpkit.Error(c, status, msg, details)
}

// fail renders err. Input and not-found errors are logged with the received
// payload fields and are not worth a CRM retry; everything else is.
func (h *Handler) fail(c *gin.Context, kind string, err error, attrs ...any) bool {
	if err == nil {
		return false
	}
	outcome := "error"
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		switch appErr.Kind {
		case apperr.KindValidation, apperr.KindBadRequest:
			outcome = "rejected"
		case apperr.KindNotFound:
			outcome = "not_found"
		case apperr.KindConflict:
			outcome = "conflict"
		}
	}
	metrics.RecordWebhookEvent(kind, outcome)
	h.log.WithContext(c.Request.Context()).WebhookEvent(kind, outcome, append(attrs, "error", err)...)
	httpkit.HandleError(c, err)
	return true
}

func (h *Handler) succeed(c *gin.Context, kind string, data any, attrs ...any) {
	metrics.RecordWebhookEvent(kind, "ok")
	h.log.WithContext(c.Request.Context()).WebhookEvent(kind, "ok", attrs...)
	c.JSON(http.StatusOK, successResponse{Success: true, Data: data})
}
