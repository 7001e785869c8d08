package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/switter/internal/service"
)

// GetUserProfile 获取用户公开资料，匿名可访问
func (a *API) GetUserProfile(c *gin.Context) {
	profile, err := a.users.Profile(c.Param("username"), currentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// GetMyProfile 获取当前用户自己的资料
func (a *API) GetMyProfile(c *gin.Context) {
	profile, err := a.users.MyProfile(currentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// UpdateMyProfile 部分更新当前用户的资料，只改给出的字段
func (a *API) UpdateMyProfile(c *gin.Context) {
	var payload struct {
		DisplayName  *string `json:"display_name"`
		Bio          *string `json:"bio"`
		ProfileImage *string `json:"profile_image"`
	}
	if !bindJSON(c, &payload, "无效的请求体") {
		return
	}

	profile, err := a.users.UpdateProfile(currentUserID(c), service.ProfileUpdate{
		DisplayName:  payload.DisplayName,
		Bio:          payload.Bio,
		ProfileImage: payload.ProfileImage,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// FollowUser 关注用户
func (a *API) FollowUser(c *gin.Context) {
	a.followAction(c, a.users.Follow)
}

// UnfollowUser 取消关注
func (a *API) UnfollowUser(c *gin.Context) {
	a.followAction(c, a.users.Unfollow)
}

// ToggleFollow 翻转关注状态
func (a *API) ToggleFollow(c *gin.Context) {
	a.followAction(c, a.users.ToggleFollow)
}

// GetFollowers 获取粉丝列表
func (a *API) GetFollowers(c *gin.Context) {
	limit, offset := parsePageQuery(c)

	page, err := a.users.Followers(c.Param("username"), limit, offset)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// GetFollowing 获取关注列表
func (a *API) GetFollowing(c *gin.Context) {
	limit, offset := parsePageQuery(c)

	page, err := a.users.FollowingList(c.Param("username"), limit, offset)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

func (a *API) followAction(c *gin.Context, action func(username string, followerID uint) (*service.FollowResult, error)) {
	result, err := action(c.Param("username"), currentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
