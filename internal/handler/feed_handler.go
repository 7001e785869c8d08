package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/switter/internal/service"
)

// TrackViews 处理浏览上报：请求体是帖子 ID 的 JSON 数组，空数组是空操作。
// 上报只写进程内缓存，永远成功返回 204；落库由后台刷盘任务完成。
func (a *API) TrackViews(c *gin.Context) {
	var postIDs []uint
	if !bindJSON(c, &postIDs, "请求体必须是帖子ID数组") {
		return
	}

	a.views.RecordViews(currentUserID(c), postIDs)
	c.Status(http.StatusNoContent)
}

// GetFollowingFeed 返回当前用户的关注信息流。
func (a *API) GetFollowingFeed(c *gin.Context) {
	limit, offset := parsePageQuery(c)

	page, err := a.feed.FollowingFeed(currentUserID(c), limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取信息流失败")
		return
	}

	c.JSON(http.StatusOK, page)
}

// GetPopularFeed 返回热门信息流，匿名可访问。
func (a *API) GetPopularFeed(c *gin.Context) {
	limit, offset := parsePageQuery(c)

	page, err := a.feed.PopularFeed(c.Request.Context(), currentUserID(c), limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取热门信息流失败")
		return
	}

	c.JSON(http.StatusOK, page)
}

// respondServiceError 把 service 层的哨兵错误映射为 HTTP 状态码。
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPostNotFound),
		errors.Is(err, service.ErrParentNotFound),
		errors.Is(err, service.ErrRepostNotFound),
		errors.Is(err, service.ErrUserNotFound):
		respondError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrPostForbidden):
		respondError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrBodyRequired),
		errors.Is(err, service.ErrBodyTooLong),
		errors.Is(err, service.ErrSelfFollow),
		errors.Is(err, service.ErrProfileFieldTooLong),
		errors.Is(err, service.ErrMediaTypeInvalid):
		respondError(c, http.StatusBadRequest, err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "服务器内部错误")
	}
}
