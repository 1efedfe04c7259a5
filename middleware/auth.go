package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/friendhub/auth"
)

const (
	AccountIDKey = "account_id"
	EmailKey     = "email"
)

// TokenVerifier checks a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// Auth validates the Bearer JWT from the Authorization header. Tokens are
// stateless: signature and expiry are the only checks.
func Auth(v TokenVerifier) gin.HandlerFunc {
	return authenticate(v, false)
}

// AuthQuery is Auth that also accepts ?token= for clients that cannot set
// headers, such as EventSource.
func AuthQuery(v TokenVerifier) gin.HandlerFunc {
	return authenticate(v, true)
}

func authenticate(v TokenVerifier, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c.GetHeader("Authorization"))
		if tokenStr == "" && allowQuery {
			tokenStr = c.Query("token")
		}
		if tokenStr == "" {
			unauthorized(c)
			return
		}

		claims, err := v.Verify(tokenStr)
		if err != nil {
			unauthorized(c)
			return
		}

		c.Set(AccountIDKey, claims.AccountID)
		c.Set(EmailKey, claims.Email)
		c.Next()
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": auth.ErrInvalidToken.Error()})
}

// GetAccountID retrieves the authenticated account ID from the Gin context.
func GetAccountID(c *gin.Context) int64 {
	if v, exists := c.Get(AccountIDKey); exists {
		return v.(int64)
	}
	return 0
}
