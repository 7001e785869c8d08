package db

import "gorm.io/gorm"

// MaxPostBodyLength 是帖子正文的最大长度（字符数）。
const MaxPostBodyLength = 500

// Post 定义了帖子模型
type Post struct {
	gorm.Model
	Body   string `gorm:"size:500;not null"`
	UserID uint   `gorm:"index"`
	User   User

	Tags    []Tag   `gorm:"many2many:post_tags;"`
	LikedBy []*User `gorm:"many2many:post_likes;"`
	Media   []Media

	// ParentID 非空时表示本帖是对另一帖的回复；父帖被删除时保留回复。
	ParentID *uint `gorm:"index"`
	Parent   *Post

	// RepostOfID 非空时表示本帖是转发
	RepostOfID *uint
	RepostOf   *Post

	// IsDeleted 软删除标记，删除的帖子从所有读路径中排除
	IsDeleted bool `gorm:"default:false;index"`
}
