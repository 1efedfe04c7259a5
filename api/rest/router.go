package rest

import (
	"github.com/gin-gonic/gin"
	mw "github.com/kasuganosora/friendhub/middleware"
)

// Routes groups the REST handlers and the guards placed in front of them.
type Routes struct {
	Auth   *AuthHandler
	Users  *UserHandler
	Social *SocialHandler
	// Admin routes are skipped when nil.
	Admin *AdminHandler

	Tokens   mw.TokenVerifier
	AdminKey string
	AdminIPs []string
}

// Register mounts every route on r.
func (rt Routes) Register(r gin.IRouter) {
	authG := r.Group("/auth")
	authG.POST("/signup", rt.Auth.Signup)
	authG.POST("/signin", rt.Auth.Signin)

	usersG := r.Group("/users")
	usersG.Use(mw.Auth(rt.Tokens))
	usersG.GET("", rt.Users.List)
	usersG.GET("/me", rt.Users.Me)
	usersG.PATCH("/me", rt.Users.EditMe)
	usersG.GET("/me/friend-requests", rt.Social.FriendRequests)
	usersG.GET("/me/friends", rt.Social.Friends)
	usersG.POST("/:id/friend-requests", rt.Social.SendFriendRequest)
	usersG.PATCH("/:id/friends", rt.Social.Accept)
	usersG.DELETE("/:id/friends", rt.Social.Decline)

	if rt.Admin != nil {
		adminG := r.Group("/admin")
		adminG.Use(mw.IPWhitelist(rt.AdminIPs), AdminAuth(rt.AdminKey))
		adminG.GET("/stats", rt.Admin.Stats)
		adminG.GET("/audit", rt.Admin.Audit)
		adminG.GET("/scheduler", rt.Admin.ListSchedulerTasks)
	}
}
