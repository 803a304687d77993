package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/comitanigiacomo/kanso-tablesync/internal/adapters/handler/http/middleware"
	"github.com/comitanigiacomo/kanso-tablesync/internal/core/domain"
	"github.com/comitanigiacomo/kanso-tablesync/internal/core/services"
)

type SynchronizationHandler struct {
	svc *services.SynchronizationService
}

func NewSynchronizationHandler(svc *services.SynchronizationService) *SynchronizationHandler {
	return &SynchronizationHandler{
		svc: svc,
	}
}

type createSynchronizationRequest struct {
	Name          string `json:"name" binding:"required"`
	URL           string `json:"url"`
	Interval      int    `json:"interval"`
	ServiceName   string `json:"service_name"`
	ServiceItemID string `json:"service_item_id"`
}

type updateSynchronizationRequest struct {
	Interval *int `json:"interval" binding:"required"`
}

func (h *SynchronizationHandler) RegisterRoutes(router *gin.RouterGroup) {
	syncs := router.Group("/synchronizations")
	{
		syncs.POST("", h.Create)
		syncs.GET("", h.List)
		syncs.GET("/:id", h.Get)
		syncs.PUT("/:id", h.Update)
		syncs.DELETE("/:id", h.Delete)
		syncs.POST("/:id/sync_now", h.SyncNow)
		syncs.GET("/:id/log", h.Log)
	}
}

func (h *SynchronizationHandler) Create(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user context missing"})
		return
	}

	var req createSynchronizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sync, err := h.svc.Create(c.Request.Context(), services.CreateSynchronizationInput{
		UserID:        userID,
		Name:          req.Name,
		URL:           req.URL,
		Interval:      req.Interval,
		ServiceName:   req.ServiceName,
		ServiceItemID: req.ServiceItemID,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, sync)
}

func (h *SynchronizationHandler) List(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user context missing"})
		return
	}

	list, err := h.svc.ListByUserID(c.Request.Context(), userID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if list == nil {
		list = []*domain.Synchronization{}
	}

	c.JSON(http.StatusOK, list)
}

func (h *SynchronizationHandler) Get(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user context missing"})
		return
	}

	sync, err := h.svc.Get(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, sync)
}

func (h *SynchronizationHandler) Update(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user context missing"})
		return
	}

	var req updateSynchronizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sync, err := h.svc.UpdateInterval(c.Request.Context(), c.Param("id"), userID, *req.Interval)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, sync)
}

func (h *SynchronizationHandler) Delete(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user context missing"})
		return
	}

	if err := h.svc.Delete(c.Request.Context(), c.Param("id"), userID); err != nil {
		h.handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *SynchronizationHandler) SyncNow(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user context missing"})
		return
	}

	sync, err := h.svc.SyncNow(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"id": sync.ID, "status": "queued"})
}

func (h *SynchronizationHandler) Log(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user context missing"})
		return
	}

	log, err := h.svc.GetLog(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, log)
}

func (h *SynchronizationHandler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrSynchronizationNotFound),
		errors.Is(err, domain.ErrLogNotFound),
		errors.Is(err, domain.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrSyncForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrSyncTooSoon):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrSyncNameEmpty),
		errors.Is(err, domain.ErrSyncSourceMissing),
		errors.Is(err, domain.ErrSyncInvalidUserID),
		errors.Is(err, domain.ErrInvalidInterval),
		errors.Is(err, domain.ErrInvalidSynchronization):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
