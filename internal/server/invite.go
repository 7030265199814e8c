package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type inviteUseRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleInviteUse(c *gin.Context) {
	account, ok := currentAccount(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req inviteUseRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		AbortWithError(c, newValidationError("code", "missing_code", "invite code is required"))
		return
	}

	if err := s.inviteSvc.Use(c.Request.Context(), account.ID, strings.TrimSpace(req.Code)); err != nil {
		AbortWithError(c, err)
		return
	}

	refreshed, err := s.accountSvc.GetByExternalID(c.Request.Context(), account.ExternalID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, refreshed)
}

func (s *Server) handleInviteCheck(c *gin.Context) {
	account, ok := currentAccount(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	code := strings.TrimSpace(c.Query("code"))
	if code == "" {
		AbortWithError(c, newValidationError("code", "missing_code", "invite code is required"))
		return
	}

	if err := s.inviteSvc.Check(c.Request.Context(), account.ID, code); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": code, "valid": true})
}

// handleInviteSweep triggers the revalidation sweep outside its schedule.
func (s *Server) handleInviteSweep(c *gin.Context) {
	if _, ok := currentAccount(c); !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	downgraded, err := s.inviteSvc.RevalidateAll(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"downgraded": downgraded})
}
