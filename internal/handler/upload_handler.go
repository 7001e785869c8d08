package handler

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/switter/internal/service"
)

// UploadMedia 处理帖子媒体上传：落盘后记录元数据（含图片尺寸探测）。
func (a *API) UploadMedia(c *gin.Context) {
	postID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的帖子ID")
		return
	}

	// 只有帖子作者可以追加媒体
	post, err := a.posts.Get(postID, currentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if post.Author.ID != currentUserID(c) {
		respondError(c, http.StatusForbidden, "只能为自己的帖子上传媒体")
		return
	}

	file, err := c.FormFile("media")
	if err != nil {
		respondError(c, http.StatusBadRequest, "未找到上传的文件")
		return
	}

	contentType := file.Header.Get("Content-Type")
	mediaType := ""
	switch {
	case contentType == "image/gif":
		mediaType = "gif"
	case strings.HasPrefix(contentType, "image/"):
		mediaType = "image"
	case strings.HasPrefix(contentType, "video/"):
		mediaType = "video"
	default:
		respondError(c, http.StatusBadRequest, "只允许上传图片或视频文件")
		return
	}

	if err := os.MkdirAll(a.uploadDir, 0o755); err != nil {
		respondError(c, http.StatusInternalServerError, "创建上传目录失败")
		return
	}

	// 生成唯一文件名
	ext := filepath.Ext(file.Filename)
	newFilename := fmt.Sprintf("%s-%s%s", time.Now().Format("20060102"), uuid.New().String(), ext)
	filePath := filepath.Join(a.uploadDir, newFilename)

	if err := c.SaveUploadedFile(file, filePath); err != nil {
		respondError(c, http.StatusInternalServerError, "保存文件失败")
		return
	}

	reader, err := os.Open(filePath)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "读取文件失败")
		return
	}
	defer reader.Close()

	media, err := a.media.Attach(postID, service.MediaInput{
		URL:       fmt.Sprintf("%s/%s", strings.TrimSuffix(a.uploadURL, "/"), newFilename),
		MediaType: mediaType,
		AltText:   c.PostForm("alt_text"),
	}, reader)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"url":        media.URL,
		"media_type": media.MediaType,
		"width":      media.Width,
		"height":     media.Height,
	})
}
