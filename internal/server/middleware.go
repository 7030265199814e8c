package server

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/stemforge/stemforge/internal/account/domain"
)

const contextAccountKey = "account"

// AuthRequired resolves the bearer subject to a local account. Identities the
// directory knows but the sync job has not mirrored yet are pulled in on
// demand.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := bearerSubject(c.GetHeader("Authorization"))
		if subject == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := c.Request.Context()
		account, err := s.accountSvc.GetByExternalID(ctx, subject)
		if errors.Is(err, accountdomain.ErrNotFound) {
			if syncErr := s.identitySvc.SyncOne(ctx, subject); syncErr != nil {
				AbortWithError(c, ErrUnauthorized)
				return
			}
			account, err = s.accountSvc.GetByExternalID(ctx, subject)
		}
		if err != nil {
			if errors.Is(err, accountdomain.ErrAccountDisabled) {
				AbortWithError(c, err)
				return
			}
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextAccountKey, account)
		c.Next()
	}
}

func bearerSubject(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

func currentAccount(c *gin.Context) (accountdomain.Account, bool) {
	value, ok := c.Get(contextAccountKey)
	if !ok {
		return accountdomain.Account{}, false
	}
	account, ok := value.(accountdomain.Account)
	return account, ok
}
