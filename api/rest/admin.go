package rest

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/friendhub/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultAuditLimit = 50

// AuditReader lists stored audit entries, newest first.
type AuditReader interface {
	Recent(ctx context.Context, limit int) ([]model.AuditLog, error)
}

// TaskLister reports the registered background tasks.
type TaskLister interface {
	ListTickers() []string
}

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	db     *gorm.DB
	audit  AuditReader
	sched  TaskLister
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(db *gorm.DB, audit AuditReader, sched TaskLister, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{db: db, audit: audit, sched: sched, logger: logger}
}

// Stats returns account and friendship counts.
// GET /admin/stats
func (h *AdminHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	var accounts, friends, pending int64
	if err := h.db.WithContext(ctx).Model(&model.Account{}).Count(&accounts).Error; err != nil {
		writeError(c, h.logger, err)
		return
	}
	if err := h.db.WithContext(ctx).Model(&model.Friendship{}).
		Where("accepted = ?", true).Count(&friends).Error; err != nil {
		writeError(c, h.logger, err)
		return
	}
	if err := h.db.WithContext(ctx).Model(&model.Friendship{}).
		Where("accepted = ?", false).Count(&pending).Error; err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accounts":         accounts,
		"friendships":      friends,
		"pending_requests": pending,
		"scheduler_tasks":  h.sched.ListTickers(),
	})
}

// Audit lists recent audit entries.
// GET /admin/audit?limit=
func (h *AdminHandler) Audit(c *gin.Context) {
	limit := defaultAuditLimit
	if v, ok := c.GetQuery("limit"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(c, h.logger, invalid("limit must be a positive integer"))
			return
		}
		limit = n
	}

	entries, err := h.audit.Recent(c.Request.Context(), limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// ListSchedulerTasks returns names of all registered ticker tasks.
// GET /admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.ListTickers()})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// If adminKey is empty all admin endpoints answer 503.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(adminKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
