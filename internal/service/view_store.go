package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/switter/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ViewSink 是刷盘任务依赖的持久化入口。
type ViewSink interface {
	// SaveViews 把一个批次写入持久层：已看记录按集合并集语义插入，
	// 浏览计数按帖子原子递增。实现必须可安全重试。
	SaveViews(ctx context.Context, batch *ViewBatch) error
}

// SeenReader 供信息流读路径解析持久化的已看状态。
type SeenReader interface {
	// SeenPostIDs 返回 postIDs 中该用户已有持久化已看记录的子集。
	SeenPostIDs(userID uint, postIDs []uint) (map[uint]struct{}, error)
}

// FollowGraph 返回用户的关注集合。关注关系的写入不在本核心内。
type FollowGraph interface {
	Following(userID uint) ([]uint, error)
}

// GormViewStore 基于 gorm 实现 ViewSink / SeenReader / FollowGraph。
type GormViewStore struct {
	db *gorm.DB
}

// NewGormViewStore 构造 GormViewStore。
func NewGormViewStore(gdb *gorm.DB) *GormViewStore {
	return &GormViewStore{db: gdb}
}

// SaveViews 在单个事务内落库整个批次。
// 已看记录使用 insert-or-ignore，浏览计数只按真正新插入的行数递增，
// 因此同一批次被重试（哪怕上次部分成功）也不会产生重复计数。
func (s *GormViewStore) SaveViews(ctx context.Context, batch *ViewBatch) error {
	if batch.Empty() {
		return nil
	}

	// 按帖子分组，便于拿到每个帖子真正新插入的行数
	rowsByPost := make(map[uint][]db.PostView)
	for userID, posts := range batch.Seen {
		for postID, viewedAt := range posts {
			rowsByPost[postID] = append(rowsByPost[postID], db.PostView{
				UserID:   userID,
				PostID:   postID,
				ViewedAt: viewedAt,
			})
		}
	}

	postIDs := make([]uint, 0, len(rowsByPost))
	for postID := range rowsByPost {
		postIDs = append(postIDs, postID)
	}
	sort.Slice(postIDs, func(i, j int) bool { return postIDs[i] < postIDs[j] })

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, postID := range postIDs {
			rows := rowsByPost[postID]
			insert := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}, {Name: "post_id"}},
				DoNothing: true,
			}).Create(&rows)
			if insert.Error != nil {
				return fmt.Errorf("insert post views: %w", insert.Error)
			}

			inserted := insert.RowsAffected
			if inserted == 0 {
				continue
			}

			stat := db.PostViewStat{PostID: postID, ViewCount: inserted}
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "post_id"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"view_count": gorm.Expr("view_count + ?", inserted),
				}),
			}).Create(&stat).Error; err != nil {
				return fmt.Errorf("increment view count: %w", err)
			}
		}
		return nil
	})
}

// SeenPostIDs 查询用户在 postIDs 中已有持久化已看记录的帖子。
func (s *GormViewStore) SeenPostIDs(userID uint, postIDs []uint) (map[uint]struct{}, error) {
	seen := make(map[uint]struct{}, len(postIDs))
	if len(postIDs) == 0 {
		return seen, nil
	}

	var ids []uint
	if err := s.db.Model(&db.PostView{}).
		Where("user_id = ? AND post_id IN ?", userID, postIDs).
		Pluck("post_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("query seen posts: %w", err)
	}

	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return seen, nil
}

// Following 返回用户关注的用户 ID 集合。
func (s *GormViewStore) Following(userID uint) ([]uint, error) {
	var ids []uint
	if err := s.db.Table(db.FollowTableName).
		Where("follower_id = ?", userID).
		Pluck("followee_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("query following: %w", err)
	}
	return ids, nil
}

// ViewCount 返回指定帖子的持久化浏览计数，没有记录时为 0。
func (s *GormViewStore) ViewCount(postID uint) (int64, error) {
	var stat db.PostViewStat
	if err := s.db.Where("post_id = ?", postID).First(&stat).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return stat.ViewCount, nil
}
