package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	mw "github.com/kasuganosora/friendhub/middleware"
	"github.com/kasuganosora/friendhub/user"
	"go.uber.org/zap"
)

// UserHandler serves profile lookups, listings and edits.
type UserHandler struct {
	svc    *user.Service
	logger *zap.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(svc *user.Service, logger *zap.Logger) *UserHandler {
	return &UserHandler{svc: svc, logger: logger}
}

type editUserRequest struct {
	FirstName *string `json:"firstName" binding:"omitnil,min=1,max=64"`
	LastName  *string `json:"lastName" binding:"omitnil,min=1,max=64"`
	Age       *int    `json:"age" binding:"omitnil,min=0,max=150"`
}

// Me handles GET /users/me.
func (h *UserHandler) Me(c *gin.Context) {
	acc, err := h.svc.GetProfile(c.Request.Context(), mw.GetAccountID(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

// List handles GET /users.
func (h *UserHandler) List(c *gin.Context) {
	page, err := bindPage(c)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	filter, err := bindFilter(c)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	res, err := h.svc.GetAllUsers(c.Request.Context(), page, filter)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// EditMe handles PATCH /users/me. Absent fields are left unchanged.
func (h *UserHandler) EditMe(c *gin.Context) {
	var req editUserRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, h.logger, err)
		return
	}

	acc, err := h.svc.EditUser(c.Request.Context(), mw.GetAccountID(c), user.Patch{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Age:       req.Age,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}
