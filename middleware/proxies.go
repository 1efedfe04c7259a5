package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// TrustProxies limits which peers may set X-Forwarded-For and X-Real-IP.
// With no proxies listed, ClientIP is always the socket peer address.
func TrustProxies(r *gin.Engine, proxies []string) error {
	if len(proxies) == 0 {
		proxies = nil
	}
	if err := r.SetTrustedProxies(proxies); err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}
	return nil
}
