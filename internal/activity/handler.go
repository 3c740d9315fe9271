package activity

import (
	"strconv"

	"portal_usap_backend/platform/apperr"
	"portal_usap_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler serves the admin activity feed.
type Handler struct {
	repo *Repository
}

// NewHandler creates the activity handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
}

func (h *Handler) List(c *gin.Context) {
	var params ListParams
	if raw := c.Query("partnerId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpkit.HandleError(c, apperr.BadRequest("invalid partnerId"))
			return
		}
		params.PartnerID = &id
	}
	params.EntityType = c.Query("entityType")
	params.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))

	entries, err := h.repo.List(c.Request.Context(), params)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": entries})
}
