package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/switter/internal/service"
)

// CreatePost 创建新帖子
func (a *API) CreatePost(c *gin.Context) {
	var payload struct {
		Body       string   `json:"body"`
		Tags       []string `json:"tags"`
		ParentID   *uint    `json:"parent_id"`
		RepostOfID *uint    `json:"repost_of_id"`
	}
	if !bindJSON(c, &payload, "无效的请求体") {
		return
	}

	post, err := a.posts.Create(service.PostInput{
		Body:       payload.Body,
		TagNames:   payload.Tags,
		ParentID:   payload.ParentID,
		RepostOfID: payload.RepostOfID,
	}, currentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, post)
}

// UpdatePost 编辑帖子，仅作者可操作。
// body 与 tags 都是可选字段：缺失表示保持不变，tags 给出时整组替换。
func (a *API) UpdatePost(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的帖子ID")
		return
	}

	var payload struct {
		Body *string   `json:"body"`
		Tags *[]string `json:"tags"`
	}
	if !bindJSON(c, &payload, "无效的请求体") {
		return
	}

	update := service.PostUpdate{Body: payload.Body}
	if payload.Tags != nil {
		update.TagNames = *payload.Tags
		if update.TagNames == nil {
			update.TagNames = []string{}
		}
	}

	post, err := a.posts.Update(id, update, currentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, post)
}

// GetPost 获取单个帖子，匿名可访问
func (a *API) GetPost(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的帖子ID")
		return
	}

	post, err := a.posts.Get(id, currentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, post)
}

// ListPosts 按过滤条件分页列出帖子，匿名可访问
func (a *API) ListPosts(c *gin.Context) {
	limit, offset := parsePageQuery(c)

	var authorID uint
	if raw := c.Query("author_id"); raw != "" {
		parsed := parseUintQuerySlice([]string{raw})
		if len(parsed) == 1 {
			authorID = parsed[0]
		}
	}

	page, err := a.posts.List(service.PostFilter{
		AuthorID: authorID,
		TagNames: c.QueryArray("tags"),
		SortBy:   c.DefaultQuery("sort_by", "recent"),
		Limit:    limit,
		Offset:   offset,
	}, currentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// GetUserPosts 按用户名列出帖子
func (a *API) GetUserPosts(c *gin.Context) {
	author, err := a.users.FindByUsername(c.Param("username"))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	limit, offset := parsePageQuery(c)
	page, err := a.posts.List(service.PostFilter{
		AuthorID: author.ID,
		Limit:    limit,
		Offset:   offset,
	}, currentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// DeletePost 软删除帖子，仅作者或管理员可操作
func (a *API) DeletePost(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的帖子ID")
		return
	}

	if err := a.posts.Delete(id, currentUserID(c)); err != nil {
		respondServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// LikePost 点赞
func (a *API) LikePost(c *gin.Context) {
	a.likeAction(c, a.posts.Like)
}

// UnlikePost 取消点赞
func (a *API) UnlikePost(c *gin.Context) {
	a.likeAction(c, a.posts.Unlike)
}

// ToggleLike 翻转点赞状态
func (a *API) ToggleLike(c *gin.Context) {
	a.likeAction(c, a.posts.ToggleLike)
}

func (a *API) likeAction(c *gin.Context, action func(postID, userID uint) (*service.LikeResult, error)) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的帖子ID")
		return
	}

	result, err := action(id, currentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
