package db

import "gorm.io/gorm"

// Media 定义了帖子附带的媒体资源模型
type Media struct {
	gorm.Model
	PostID    uint   `gorm:"index"`
	URL       string `gorm:"size:500;not null"`
	MediaType string `gorm:"size:20"` // image, video, gif
	Width     int
	Height    int
	AltText   string `gorm:"size:500"`
	Position  int    `gorm:"default:0"`
}

// TableName 指定自定义表名。
func (Media) TableName() string {
	return "post_media"
}
