package middlewares

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/admission_billing/config"
	"github.com/mmdatafocus/admission_billing/utils"
	"github.com/sirupsen/logrus"
)

// Session is what the sign-in service stores under session:<token>.
type Session struct {
	Username   string `json:"username"`
	HospitalId string `json:"hospital_id"`
	IsAdmin    bool   `json:"is_admin"`
}

// SessionMiddleware resolves the token header to a session and puts the
// username and hospital id in the request context. Requests without a token
// pass through; RequireSession rejects them later.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		raw, exists, err := config.GetRedisValue(ctx, utils.SessionKey(token))
		if err != nil {
			config.GetLogger().WithFields(logrus.Fields{
				"field": "SessionMiddleware",
			}).Error("session lookup failed: " + err.Error())
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
			return
		}
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		session, err := parseSession(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		ctx = utils.SetTokenInContext(ctx, token)
		ctx = utils.SetUsernameInContext(ctx, session.Username)
		ctx = utils.SetHospitalIdInContext(ctx, session.HospitalId)
		if session.IsAdmin {
			ctx = utils.SetIsAdminInContext(ctx, true)
			// admins pick the hospital they act on
			if hospitalId := strings.TrimSpace(c.GetHeader("x-hospital-id")); hospitalId != "" {
				ctx = utils.SetHospitalIdInContext(ctx, hospitalId)
			}
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// parseSession accepts the JSON session; a bare string is an older
// username-only value and is rejected because it names no hospital.
func parseSession(raw string) (Session, error) {
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Session{}, err
	}
	s.Username = strings.TrimSpace(s.Username)
	s.HospitalId = strings.TrimSpace(s.HospitalId)
	if s.Username == "" || s.HospitalId == "" {
		return Session{}, utils.ErrorInvalidInput
	}
	return s, nil
}

// RequireSession aborts with 401 unless SessionMiddleware found a session.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		username, ok := utils.GetUsernameFromContext(ctx)
		if !ok || username == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if hospitalId, ok := utils.GetHospitalIdFromContext(ctx); !ok || hospitalId == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// RequireAdmin is for ops endpoints.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !utils.GetIsAdminFromContext(c.Request.Context()) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
