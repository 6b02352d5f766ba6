package http

import (
	"crypto/subtle"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/facturia/invoice-pipeline/internal/application/port"
	"github.com/facturia/invoice-pipeline/internal/domain/entity"
)

const (
	identityKey = "identity"
	userKey     = "user"
)

// authenticate verifies the bearer token and loads the caller's user record
func (h *Handlers) authenticate(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		h.fail(c, fmt.Errorf("%w: no bearer token provided", entity.ErrUnauthorized))
		return
	}

	identity, err := h.services.Verifier.Verify(header)
	if err != nil {
		h.fail(c, err)
		return
	}

	user, err := h.services.Users.Touch(c.Request.Context(), identity)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Set(identityKey, identity)
	c.Set(userKey, user)
	c.Next()
}

// requireActive rejects callers whose trial has lapsed
func (h *Handlers) requireActive(c *gin.Context) {
	if user := currentUser(c); user == nil || !user.CanSubmit() {
		h.fail(c, entity.ErrTrialExpired)
		return
	}
	c.Next()
}

func ownerID(c *gin.Context) string {
	if v, ok := c.Get(identityKey); ok {
		return v.(*port.Identity).Subject
	}
	return ""
}

func currentUser(c *gin.Context) *entity.User {
	if v, ok := c.Get(userKey); ok {
		return v.(*entity.User)
	}
	return nil
}

// cronAuthorized checks the shared dispatch secret in constant time
func cronAuthorized(header, secret string) bool {
	if secret == "" {
		return false
	}
	expected := "Bearer " + secret
	return subtle.ConstantTimeCompare([]byte(header), []byte(expected)) == 1
}
