package db

import "gorm.io/gorm"

// Tag 定义了标签模型。标签名由调用方显式提供，正文中的话题抽取由外部服务完成。
type Tag struct {
	gorm.Model
	Name  string `gorm:"uniqueIndex;not null"`
	Posts []Post `gorm:"many2many:post_tags;"`
}
