package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/edgard/shulebot/internal/database"
	"github.com/edgard/shulebot/internal/mpesa"
	"github.com/edgard/shulebot/internal/payments"
)

// Daraja treats anything but ResultCode 0 as a delivery failure and retries.
var (
	gatewayAccepted = gin.H{"ResultCode": 0, "ResultDesc": "Accepted"}
	gatewayError    = gin.H{"ResultCode": 1, "ResultDesc": "Internal error"}
)

func (s *Server) handleCallback(c *gin.Context) {
	ctx := c.Request.Context()

	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBytes))
	if err != nil {
		// Keep whatever arrived; the reconciler stores it as an orphan.
		s.log.WarnContext(ctx, "Callback body read incomplete", "error", err, "bytes", len(raw))
	}

	rec, err := s.deps.Reconciler.Reconcile(ctx, raw)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to store callback", "error", err)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gatewayError)
		return
	}

	s.log.InfoContext(ctx, "Callback accepted",
		"checkout_request_id", rec.CheckoutRequestID,
		"status", rec.Status,
		"orphan", rec.Orphan)
	c.JSON(http.StatusOK, gatewayAccepted)
}

func (s *Server) handleRegisterInit(c *gin.Context) {
	var reg mpesa.Registration
	if err := c.ShouldBindJSON(&reg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	rec, err := s.deps.Reconciler.RecordInitiation(c.Request.Context(), reg, "")
	if errors.Is(err, payments.ErrInvalidRegistration) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "failed to record initiation",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    rec,
	})
}

type chatMessageRequest struct {
	SenderID string `json:"sender_id" binding:"required"`
	Body     string `json:"body"`
}

func (s *Server) handleChatMessage(c *gin.Context) {
	var req chatMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	reply := s.deps.Router.Route(c.Request.Context(), req.SenderID, req.Body)
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}

func (s *Server) handleListPayments(c *gin.Context) {
	records, err := s.deps.Ledger.ListPayments(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "failed to list payments",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    records,
	})
}

func (s *Server) handleGetPayment(c *gin.Context) {
	rec, err := s.deps.Ledger.GetPayment(c.Request.Context(), c.Param("checkout_id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "payment not found",
		})
		return
	}
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "failed to load payment",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    rec,
	})
}

func (s *Server) handleConversation(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "limit must be a non-negative integer",
		})
		return
	}

	entries, err := s.deps.Store.GetHistory(c.Request.Context(), c.Param("user_id"), limit)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "failed to load conversation",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    entries,
	})
}

func (s *Server) handleListBans(c *gin.Context) {
	ids, err := s.deps.Store.ListBanned(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "failed to list bans",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    ids,
	})
}

func (s *Server) handleBan(c *gin.Context) {
	s.setBan(c, true)
}

func (s *Server) handleUnban(c *gin.Context) {
	s.setBan(c, false)
}

func (s *Server) setBan(c *gin.Context, ban bool) {
	userID := c.Param("user_id")

	var err error
	if ban {
		err = s.deps.Store.Ban(c.Request.Context(), userID)
	} else {
		err = s.deps.Store.Unban(c.Request.Context(), userID)
	}
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "failed to update ban list",
		})
		return
	}

	s.log.InfoContext(c.Request.Context(), "Ban list updated via API", "user_id", userID, "ban", ban)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"user_id": userID, "banned": ban},
	})
}
