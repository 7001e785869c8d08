package service

import (
	"errors"
	"fmt"
	"image"
	"io"
	"strings"

	// 注册标准图片解码器，外加 webp（信息流里最常见的四种格式）
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/switter/internal/db"
	"gorm.io/gorm"
)

var ErrMediaTypeInvalid = errors.New("unsupported media type")

// MediaService 负责帖子媒体记录的写入。文件本体由 handler 落盘，
// 这里只负责探测尺寸并记录元数据。
type MediaService struct {
	db *gorm.DB
}

// NewMediaService 构造 MediaService。
func NewMediaService(gdb *gorm.DB) *MediaService {
	return &MediaService{db: gdb}
}

// MediaInput 描述一条媒体记录的输入。
type MediaInput struct {
	URL       string
	MediaType string // image, video, gif
	AltText   string
}

// Attach 为帖子追加一条媒体记录。r 非空时尝试解码图片尺寸，
// 解码失败不视为错误（尺寸留空），位置按现有条数顺延。
func (s *MediaService) Attach(postID uint, input MediaInput, r io.Reader) (*db.Media, error) {
	mediaType := strings.TrimSpace(input.MediaType)
	switch mediaType {
	case "image", "video", "gif":
	default:
		return nil, ErrMediaTypeInvalid
	}

	width, height := 0, 0
	if r != nil && mediaType != "video" {
		if cfg, _, err := image.DecodeConfig(r); err == nil {
			width, height = cfg.Width, cfg.Height
		}
	}

	var position int64
	if err := s.db.Model(&db.Media{}).Where("post_id = ?", postID).Count(&position).Error; err != nil {
		return nil, fmt.Errorf("count media: %w", err)
	}

	media := db.Media{
		PostID:    postID,
		URL:       strings.TrimSpace(input.URL),
		MediaType: mediaType,
		Width:     width,
		Height:    height,
		AltText:   strings.TrimSpace(input.AltText),
		Position:  int(position),
	}
	if err := s.db.Create(&media).Error; err != nil {
		return nil, fmt.Errorf("create media: %w", err)
	}
	return &media, nil
}
