package router

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/switter/internal/handler"
)

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, sessionSecret, uploadDir, uploadURLPath string) *gin.Engine {
	r := gin.Default()

	// 会话由外部认证服务写入，这里共享同一个 cookie 存储
	store := cookie.NewStore([]byte(sessionSecret))
	r.Use(sessions.Sessions("switter_session", store))

	if uploadDir != "" && uploadURLPath != "" {
		r.Static(uploadURLPath, uploadDir)
	}

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	apiGroup := r.Group("/api")
	{
		posts := apiGroup.Group("/posts")
		{
			posts.GET("", api.ListPosts)
			posts.GET("/:id", api.GetPost)
			posts.GET("/user/:username", api.GetUserPosts)

			auth := posts.Group("")
			auth.Use(handler.AuthRequired())
			{
				auth.POST("", api.CreatePost)
				auth.PATCH("/:id", api.UpdatePost)
				auth.DELETE("/:id", api.DeletePost)
				auth.POST("/views", api.TrackViews)
				auth.POST("/:id/like", api.LikePost)
				auth.DELETE("/:id/like", api.UnlikePost)
				auth.POST("/:id/like/toggle", api.ToggleLike)
				auth.POST("/:id/media", api.UploadMedia)
			}
		}

		feed := apiGroup.Group("/feed")
		{
			feed.GET("/popular", api.GetPopularFeed)

			auth := feed.Group("")
			auth.Use(handler.AuthRequired())
			{
				auth.GET("", api.GetFollowingFeed)
			}
		}

		users := apiGroup.Group("/users")
		{
			users.GET("/:username", api.GetUserProfile)
			users.GET("/:username/followers", api.GetFollowers)
			users.GET("/:username/following", api.GetFollowing)

			auth := users.Group("")
			auth.Use(handler.AuthRequired())
			{
				auth.GET("/me", api.GetMyProfile)
				auth.PATCH("/me", api.UpdateMyProfile)
				auth.POST("/:username/follow", api.FollowUser)
				auth.DELETE("/:username/follow", api.UnfollowUser)
				auth.POST("/:username/follow/toggle", api.ToggleFollow)
			}
		}
	}

	return r
}
