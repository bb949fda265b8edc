package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"studhub/internal/domain"
	"studhub/internal/middleware"
	"studhub/internal/service"
	"studhub/pkg/cloudinary"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxReceiptBytes = 5 << 20

type PaymentHandler struct {
	svc   *service.PaymentService
	cloud cloudinary.Client
}

func NewPaymentHandler(svc *service.PaymentService, cloud cloudinary.Client) *PaymentHandler {
	return &PaymentHandler{svc: svc, cloud: cloud}
}

// Submit creates a funding request from a multipart form with the receipt
// image. File type and size are checked here, before the workflow engine
// is invoked; the engine only ever sees the opaque reference.
func (h *PaymentHandler) Submit(c *gin.Context) {
	userID := middleware.GetUserID(c)
	amountCents, err := strconv.ParseInt(c.PostForm("amount_cents"), 10, 64)
	if err != nil || amountCents <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount_cents must be a positive integer"})
		return
	}
	file, err := c.FormFile("receipt")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "receipt file required"})
		return
	}
	if file.Size > maxReceiptBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "receipt too large (max 5MB)"})
		return
	}
	ct := file.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "image/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "receipt must be an image"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
		return
	}
	defer f.Close()

	folder := "studhub/receipts/" + strconv.FormatUint(uint64(userID), 10)
	publicID := "rc_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
	ref, err := h.cloud.UploadReceipt(c.Request.Context(), f, folder, publicID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "receipt upload failed"})
		return
	}

	p, err := h.svc.CreatePayment(c.Request.Context(), userID, amountCents, ref, c.PostForm("description"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAmount), errors.Is(err, service.ErrReceiptRequired):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrAccountSuspended):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create payment"})
		}
		return
	}
	c.JSON(http.StatusCreated, p)
}

type processRequest struct {
	Decision            string `json:"decision" binding:"required"`
	ApprovedAmountCents *int64 `json:"approved_amount_cents"`
	RejectReason        string `json:"reject_reason"`
	AdminNotes          string `json:"admin_notes"`
}

// Process applies an admin decision and maps the engine's result code to
// an HTTP status. ALREADY_SUCCESS is a 200: the caller's intent already
// holds.
func (h *PaymentHandler) Process(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.svc.ProcessPayment(c.Request.Context(), service.ProcessCommand{
		PaymentID:           id,
		Decision:            strings.ToUpper(req.Decision),
		AdminID:             middleware.GetUserID(c),
		ApprovedAmountCents: req.ApprovedAmountCents,
		RejectReason:        req.RejectReason,
		AdminNotes:          req.AdminNotes,
		IPAddress:           c.ClientIP(),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}
	c.JSON(statusForCode(res.Code), res)
}

func statusForCode(code service.ProcessCode) int {
	switch code {
	case service.CodeSuccess, service.CodeAlreadySuccess:
		return http.StatusOK
	case service.CodeInvalidTransition:
		return http.StatusConflict
	case service.CodeValidationError:
		return http.StatusBadRequest
	case service.CodeUnauthorized:
		return http.StatusForbidden
	case service.CodeNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// Get returns one payment. The sender sees their own; staff see any.
func (h *PaymentHandler) Get(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}
	p, err := h.svc.GetPayment(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	if p.SenderID != middleware.GetUserID(c) && !domain.IsStaffRole(middleware.GetRole(c)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.JSON(http.StatusOK, p)
}

// ListMine returns the authenticated user's payments.
func (h *PaymentHandler) ListMine(c *gin.Context) {
	page, limit := pageParams(c)
	list, total, err := h.svc.ListBySender(c.Request.Context(), middleware.GetUserID(c), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": list, "total": total, "page": page, "limit": limit})
}

// ListPending returns the review queue, oldest first.
func (h *PaymentHandler) ListPending(c *gin.Context) {
	page, limit := pageParams(c)
	list, total, err := h.svc.ListPending(c.Request.Context(), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": list, "total": total, "page": page, "limit": limit})
}

// List returns payments with optional status filter (staff).
func (h *PaymentHandler) List(c *gin.Context) {
	page, limit := pageParams(c)
	list, total, err := h.svc.ListByStatus(c.Request.Context(), strings.ToUpper(c.Query("status")), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": list, "total": total, "page": page, "limit": limit})
}

// ListByAdmin returns payments decided by one admin (staff).
func (h *PaymentHandler) ListByAdmin(c *gin.Context) {
	adminID, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid admin id"})
		return
	}
	page, limit := pageParams(c)
	list, total, err := h.svc.ListByAdmin(c.Request.Context(), adminID, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": list, "total": total, "page": page, "limit": limit})
}

// Stats returns counts and totals per status (staff).
func (h *PaymentHandler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func parseID(s string) (uint, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	return uint(n), err
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	return page, limit
}
