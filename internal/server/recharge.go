package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stemforge/stemforge/internal/metrics"
	rechargedomain "github.com/stemforge/stemforge/internal/recharge/domain"
	"go.uber.org/zap"
)

// maxWebhookBody bounds rail callback payloads.
const maxWebhookBody = 1 << 20

type stripeOrderRequest struct {
	PriceID string `json:"price_id"`
}

func (s *Server) handleCreateStripeOrder(c *gin.Context) {
	account, ok := currentAccount(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req stripeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.PriceID) == "" {
		AbortWithError(c, newValidationError("price_id", "missing_price_id", "price_id is required"))
		return
	}

	order, err := s.rechargeSvc.CreateStripeOrder(c.Request.Context(), account.ID, strings.TrimSpace(req.PriceID))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type wechatOrderRequest struct {
	Credits float64 `json:"credits"`
}

func (s *Server) handleCreateWeChatOrder(c *gin.Context) {
	account, ok := currentAccount(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req wechatOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("credits", "invalid_credits", "credits must be a number"))
		return
	}

	order, err := s.rechargeSvc.CreateWeChatOrder(c.Request.Context(), account.ID, req.Credits)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) handleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	err = s.rechargeSvc.HandleStripeWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		metrics.WebhooksReceived.WithLabelValues(rechargedomain.RailStripe, "error").Inc()
		AbortWithError(c, err)
		return
	}
	metrics.WebhooksReceived.WithLabelValues(rechargedomain.RailStripe, "ok").Inc()
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (s *Server) handleWeChatNotify(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ack, err := s.rechargeSvc.HandleWeChatCallback(c.Request.Context(), payload)
	if err != nil {
		metrics.WebhooksReceived.WithLabelValues(rechargedomain.RailWeChat, "error").Inc()
		s.log.Warn("wechat notify rejected", zap.Error(err))
	} else {
		metrics.WebhooksReceived.WithLabelValues(rechargedomain.RailWeChat, "ok").Inc()
	}
	if ack == "" {
		AbortWithError(c, err)
		return
	}

	// The rail keeps retrying until it sees the XML acknowledgement, so a
	// failure ack still goes back with 200.
	c.Data(http.StatusOK, "application/xml", []byte(ack))
}

func (s *Server) handleRechargeHistory(c *gin.Context) {
	account, ok := currentAccount(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	records, err := s.rechargeSvc.ListByAccount(c.Request.Context(), account.ID, listLimit(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recharges": records})
}

type reconcileRequest struct {
	ExternalRef string `json:"external_ref"`
}

// handleReconcileOrder lets a client force a poll of a pending order whose
// webhook has not landed yet.
func (s *Server) handleReconcileOrder(c *gin.Context) {
	if _, ok := currentAccount(c); !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req reconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ExternalRef) == "" {
		AbortWithError(c, newValidationError("external_ref", "missing_external_ref", "external_ref is required"))
		return
	}

	if err := s.rechargeSvc.ReconcileOrder(c.Request.Context(), strings.TrimSpace(req.ExternalRef)); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reconciled": true})
}
