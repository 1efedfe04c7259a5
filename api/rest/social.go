package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	mw "github.com/kasuganosora/friendhub/middleware"
	"github.com/kasuganosora/friendhub/social"
	"go.uber.org/zap"
)

// SocialHandler handles friend request and friend list endpoints.
type SocialHandler struct {
	svc    *social.Service
	logger *zap.Logger
}

// NewSocialHandler creates a new SocialHandler.
func NewSocialHandler(svc *social.Service, logger *zap.Logger) *SocialHandler {
	return &SocialHandler{svc: svc, logger: logger}
}

// FriendRequests handles GET /users/me/friend-requests.
func (h *SocialHandler) FriendRequests(c *gin.Context) {
	reqs, err := h.svc.GetFriendRequests(c.Request.Context(), mw.GetAccountID(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, reqs)
}

// SendFriendRequest handles POST /users/:id/friend-requests.
func (h *SocialHandler) SendFriendRequest(c *gin.Context) {
	receiverID, err := pathID(c)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if err := h.svc.AddFriendRequest(c.Request.Context(), mw.GetAccountID(c), receiverID); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true})
}

// Friends handles GET /users/me/friends.
func (h *SocialHandler) Friends(c *gin.Context) {
	page, err := bindPage(c)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	res, err := h.svc.GetAllFriends(c.Request.Context(), mw.GetAccountID(c), page)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Accept handles PATCH /users/:id/friends, where :id is the requester.
func (h *SocialHandler) Accept(c *gin.Context) {
	requesterID, err := pathID(c)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if err := h.svc.AcceptFriendRequest(c.Request.Context(), mw.GetAccountID(c), requesterID); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Decline handles DELETE /users/:id/friends, where :id is the requester.
func (h *SocialHandler) Decline(c *gin.Context) {
	requesterID, err := pathID(c)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if err := h.svc.DeclineFriendRequest(c.Request.Context(), mw.GetAccountID(c), requesterID); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
