package db

import "time"

// PostView 记录「某用户已看过某帖」的持久化事实。
// (UserID, PostID) 唯一索引保证每对只落一行；行只增不删，
// 写入方（刷盘任务）使用 insert-or-ignore，重复写入是无害的空操作。
type PostView struct {
	ID       uint `gorm:"primaryKey"`
	UserID   uint `gorm:"index:idx_post_views_user_post,unique;index"`
	PostID   uint `gorm:"index:idx_post_views_user_post,unique"`
	ViewedAt time.Time
}

// TableName 指定自定义表名。
func (PostView) TableName() string {
	return "post_views"
}

// PostViewStat 汇总帖子维度的浏览计数，只由刷盘任务批量递增，单调不减。
type PostViewStat struct {
	ID        uint  `gorm:"primaryKey"`
	PostID    uint  `gorm:"uniqueIndex"`
	ViewCount int64 `gorm:"default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 指定自定义表名。
func (PostViewStat) TableName() string {
	return "post_view_stats"
}
