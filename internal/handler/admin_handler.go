package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"studhub/internal/middleware"
	"studhub/internal/repository"
	"studhub/internal/service"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type AdminHandler struct {
	svc   *service.AdminService
	users *repository.UserRepository
}

func NewAdminHandler(svc *service.AdminService, users *repository.UserRepository) *AdminHandler {
	return &AdminHandler{svc: svc, users: users}
}

type roleChangeRequest struct {
	Role   string `json:"role" binding:"required"`
	Reason string `json:"reason"`
}

func (h *AdminHandler) ChangeRole(c *gin.Context) {
	targetID, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	var req roleChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	action, err := h.svc.ChangeRole(c.Request.Context(), targetID, strings.ToUpper(req.Role), middleware.GetUserID(c), req.Reason, c.ClientIP())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, action)
}

type balanceAdjustRequest struct {
	AmountCents int64  `json:"amount_cents" binding:"required,min=1"`
	Reason      string `json:"reason"`
}

func (h *AdminHandler) AddBalance(c *gin.Context) {
	h.adjustBalance(c, true)
}

func (h *AdminHandler) SubtractBalance(c *gin.Context) {
	h.adjustBalance(c, false)
}

func (h *AdminHandler) adjustBalance(c *gin.Context, credit bool) {
	targetID, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	var req balanceAdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	adminID := middleware.GetUserID(c)
	var action interface{}
	if credit {
		action, err = h.svc.AddBalance(c.Request.Context(), targetID, req.AmountCents, adminID, req.Reason, c.ClientIP())
	} else {
		action, err = h.svc.SubtractBalance(c.Request.Context(), targetID, req.AmountCents, adminID, req.Reason, c.ClientIP())
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, action)
}

type statusChangeRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

func (h *AdminHandler) ChangeAccountStatus(c *gin.Context) {
	targetID, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	var req statusChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	action, err := h.svc.ChangeAccountStatus(c.Request.Context(), targetID, strings.ToUpper(req.Status), middleware.GetUserID(c), req.Reason, c.ClientIP())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, action)
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, limit := pageParams(c)
	users, total, err := h.users.ListUsers(c.Query("search"), strings.ToUpper(c.Query("role")), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "total": total, "page": page, "limit": limit})
}

func (h *AdminHandler) GetAction(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid action id"})
		return
	}
	action, err := h.svc.GetAction(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "action not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, action)
}

func (h *AdminHandler) ListActions(c *gin.Context) {
	page, limit := pageParams(c)
	actionType := strings.ToUpper(c.Query("type"))
	list, total, err := h.svc.ListActions(c.Request.Context(), actionType, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": list, "total": total, "page": page, "limit": limit})
}

func (h *AdminHandler) ListActionsByAdmin(c *gin.Context) {
	adminID, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid admin id"})
		return
	}
	page, limit := pageParams(c)
	list, total, err := h.svc.ListActionsByAdmin(c.Request.Context(), adminID, strings.ToUpper(c.Query("type")), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": list, "total": total, "page": page, "limit": limit})
}

func (h *AdminHandler) ListActionsByTarget(c *gin.Context) {
	targetID, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	page, limit := pageParams(c)
	list, total, err := h.svc.ListActionsByTarget(c.Request.Context(), targetID, strings.ToUpper(c.Query("type")), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": list, "total": total, "page": page, "limit": limit})
}

func (h *AdminHandler) RecentActions(c *gin.Context) {
	n, _ := strconv.Atoi(c.DefaultQuery("n", "10"))
	list, err := h.svc.RecentActions(c.Request.Context(), n, strings.ToUpper(c.Query("type")))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": list})
}

func (h *AdminHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUnauthorized), errors.Is(err, service.ErrSuperAdminOnly):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrTargetNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidRole), errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrAmountOutOfBounds), errors.Is(err, repository.ErrInsufficientBalance):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "operation failed"})
	}
}
