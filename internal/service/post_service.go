package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/switter/internal/db"
	"gorm.io/gorm"
)

var (
	ErrPostNotFound   = errors.New("post not found")
	ErrPostForbidden  = errors.New("post belongs to another user")
	ErrParentNotFound = errors.New("parent post not found")
	ErrRepostNotFound = errors.New("original post not found")
	ErrBodyRequired   = errors.New("post body is required")
	ErrBodyTooLong    = errors.New("post body exceeds maximum length")
)

// PostService wraps post related database operations.
type PostService struct {
	db *gorm.DB
}

// NewPostService creates a PostService instance.
func NewPostService(gdb *gorm.DB) *PostService {
	return &PostService{db: gdb}
}

// PostInput represents fields accepted when creating a post.
// 标签名由调用方显式给出（话题抽取由外部服务完成）。
type PostInput struct {
	Body       string
	TagNames   []string
	ParentID   *uint
	RepostOfID *uint
}

// AuthorOut 是帖子作者的摘要视图。
type AuthorOut struct {
	ID          uint   `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// MediaOut 是帖子媒体的输出视图。
type MediaOut struct {
	URL       string `json:"url"`
	MediaType string `json:"media_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	AltText   string `json:"alt_text"`
}

// PostOut 是对外输出的帖子视图。
type PostOut struct {
	ID          uint       `json:"id"`
	Body        string     `json:"body"`
	BodyHTML    string     `json:"body_html"`
	Author      AuthorOut  `json:"author"`
	Tags        []string   `json:"tags"`
	LikeCount   int64      `json:"like_count"`
	ReplyCount  int64      `json:"reply_count"`
	RepostCount int64      `json:"repost_count"`
	IsLiked     bool       `json:"is_liked"`
	Media       []MediaOut `json:"media"`
	ParentID    *uint      `json:"parent_id,omitempty"`
	RepostOfID  *uint      `json:"repost_of_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// PostPage 是分页后的帖子列表，JSON 字段与客户端契约一一对应。
type PostPage struct {
	Items   []PostOut `json:"items"`
	Total   int64     `json:"total"`
	Limit   int       `json:"limit"`
	Offset  int       `json:"offset"`
	HasMore bool      `json:"has_more"`
}

// PostFilter describes filters for listing posts.
type PostFilter struct {
	AuthorID uint
	TagNames []string
	SortBy   string // recent | popular
	Limit    int
	Offset   int
}

// Create 新建帖子并关联标签，返回完整视图。
func (s *PostService) Create(input PostInput, authorID uint) (*PostOut, error) {
	body := strings.TrimSpace(input.Body)
	if body == "" {
		return nil, ErrBodyRequired
	}
	if len([]rune(body)) > db.MaxPostBodyLength {
		return nil, ErrBodyTooLong
	}

	if input.ParentID != nil {
		if _, err := s.activePost(*input.ParentID); err != nil {
			if errors.Is(err, ErrPostNotFound) {
				return nil, ErrParentNotFound
			}
			return nil, err
		}
	}
	if input.RepostOfID != nil {
		if _, err := s.activePost(*input.RepostOfID); err != nil {
			if errors.Is(err, ErrPostNotFound) {
				return nil, ErrRepostNotFound
			}
			return nil, err
		}
	}

	post := db.Post{
		Body:       body,
		UserID:     authorID,
		ParentID:   input.ParentID,
		RepostOfID: input.RepostOfID,
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&post).Error; err != nil {
			return fmt.Errorf("create post: %w", err)
		}

		for _, name := range input.TagNames {
			trimmed := strings.ToLower(strings.TrimSpace(name))
			if trimmed == "" {
				continue
			}
			var tag db.Tag
			if err := tx.Where("name = ?", trimmed).FirstOrCreate(&tag, db.Tag{Name: trimmed}).Error; err != nil {
				return fmt.Errorf("get or create tag: %w", err)
			}
			if err := tx.Model(&post).Association("Tags").Append(&tag); err != nil {
				return fmt.Errorf("attach tag: %w", err)
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	return s.Get(post.ID, authorID)
}

// PostUpdate 描述帖子的部分更新。nil 字段表示保持不变；
// TagNames 非 nil 时整组替换标签（空切片即清空）。
type PostUpdate struct {
	Body     *string
	TagNames []string
}

// Update 编辑帖子。仅作者本人可编辑；正文按创建时的规则重新校验。
func (s *PostService) Update(id uint, input PostUpdate, userID uint) (*PostOut, error) {
	post, err := s.activePost(id)
	if err != nil {
		return nil, err
	}
	if post.UserID != userID {
		return nil, ErrPostForbidden
	}

	if input.Body != nil {
		body := strings.TrimSpace(*input.Body)
		if body == "" {
			return nil, ErrBodyRequired
		}
		if len([]rune(body)) > db.MaxPostBodyLength {
			return nil, ErrBodyTooLong
		}
		post.Body = body
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(post).Update("body", post.Body).Error; err != nil {
			return fmt.Errorf("update post: %w", err)
		}

		if input.TagNames == nil {
			return nil
		}

		// 整组替换：先清空旧标签再挂新标签
		if err := tx.Model(post).Association("Tags").Clear(); err != nil {
			return fmt.Errorf("clear tags: %w", err)
		}
		for _, name := range input.TagNames {
			trimmed := strings.ToLower(strings.TrimSpace(name))
			if trimmed == "" {
				continue
			}
			var tag db.Tag
			if err := tx.Where("name = ?", trimmed).FirstOrCreate(&tag, db.Tag{Name: trimmed}).Error; err != nil {
				return fmt.Errorf("get or create tag: %w", err)
			}
			if err := tx.Model(post).Association("Tags").Append(&tag); err != nil {
				return fmt.Errorf("attach tag: %w", err)
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	return s.Get(id, userID)
}

// Get 获取单个帖子视图。viewerID 为 0 时表示匿名访问。
func (s *PostService) Get(id uint, viewerID uint) (*PostOut, error) {
	post, err := s.activePost(id)
	if err != nil {
		return nil, err
	}

	items, err := s.BuildPostOutputs([]db.Post{*post}, viewerID)
	if err != nil {
		return nil, err
	}
	return &items[0], nil
}

// List 返回满足过滤条件的帖子分页，支持 recent/popular 两种排序。
func (s *PostService) List(filter PostFilter, viewerID uint) (*PostPage, error) {
	limit, offset := clampPage(filter.Limit, filter.Offset)

	query := s.db.Model(&db.Post{}).Where("is_deleted = ?", false)
	if filter.AuthorID != 0 {
		query = query.Where("user_id = ?", filter.AuthorID)
	}
	if len(filter.TagNames) > 0 {
		names := make([]string, 0, len(filter.TagNames))
		for _, name := range filter.TagNames {
			names = append(names, strings.ToLower(strings.TrimSpace(name)))
		}
		tagged := s.db.Table("post_tags").
			Select("post_tags.post_id").
			Joins("JOIN tags ON tags.id = post_tags.tag_id").
			Where("tags.name IN ?", names)
		query = query.Where("posts.id IN (?)", tagged)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count posts: %w", err)
	}

	if filter.SortBy == "popular" {
		query = query.
			Joins("LEFT JOIN post_view_stats ON post_view_stats.post_id = posts.id").
			Order("COALESCE(post_view_stats.view_count, 0) DESC").
			Order("posts.created_at DESC")
	} else {
		query = query.Order("posts.created_at DESC")
	}

	var posts []db.Post
	if err := query.Preload("User").Preload("Tags").Preload("Media").
		Limit(limit).Offset(offset).Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}

	items, err := s.BuildPostOutputs(posts, viewerID)
	if err != nil {
		return nil, err
	}

	return &PostPage{
		Items:   items,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: int64(offset+len(items)) < total,
	}, nil
}

// Delete 软删除帖子。仅作者本人或管理员可删除。
func (s *PostService) Delete(id uint, userID uint) error {
	post, err := s.activePost(id)
	if err != nil {
		return err
	}

	if post.UserID != userID {
		var user db.User
		if err := s.db.First(&user, userID).Error; err != nil || !user.IsAdmin {
			return ErrPostForbidden
		}
	}

	if err := s.db.Model(post).Update("is_deleted", true).Error; err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}

// LikeResult 是点赞操作的输出，JSON 字段与客户端契约一一对应。
type LikeResult struct {
	Liked     bool  `json:"liked"`
	LikeCount int64 `json:"like_count"`
}

// Like 点赞。重复点赞是幂等的。
func (s *PostService) Like(postID, userID uint) (*LikeResult, error) {
	return s.setLiked(postID, userID, true)
}

// Unlike 取消点赞。未点赞时取消是无害的空操作。
func (s *PostService) Unlike(postID, userID uint) (*LikeResult, error) {
	return s.setLiked(postID, userID, false)
}

// ToggleLike 翻转点赞状态。
func (s *PostService) ToggleLike(postID, userID uint) (*LikeResult, error) {
	post, err := s.activePost(postID)
	if err != nil {
		return nil, err
	}

	liked, err := s.isLiked(postID, userID)
	if err != nil {
		return nil, err
	}
	return s.applyLike(post, userID, !liked)
}

func (s *PostService) setLiked(postID, userID uint, liked bool) (*LikeResult, error) {
	post, err := s.activePost(postID)
	if err != nil {
		return nil, err
	}
	return s.applyLike(post, userID, liked)
}

func (s *PostService) applyLike(post *db.Post, userID uint, liked bool) (*LikeResult, error) {
	user := db.User{Model: gorm.Model{ID: userID}}
	assoc := s.db.Model(post).Association("LikedBy")

	var err error
	if liked {
		err = assoc.Append(&user)
	} else {
		err = assoc.Delete(&user)
	}
	if err != nil {
		return nil, fmt.Errorf("update like: %w", err)
	}

	var count int64
	if err := s.db.Table("post_likes").Where("post_id = ?", post.ID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("count likes: %w", err)
	}

	return &LikeResult{Liked: liked, LikeCount: count}, nil
}

// likedPostIDs 返回 ids 中 viewer 已点赞的子集。viewerID 为 0 时恒为空。
func (s *PostService) likedPostIDs(viewerID uint, ids []uint) (map[uint]struct{}, error) {
	liked := map[uint]struct{}{}
	if viewerID == 0 || len(ids) == 0 {
		return liked, nil
	}

	var likedIDs []uint
	if err := s.db.Table("post_likes").
		Where("user_id = ? AND post_id IN ?", viewerID, ids).
		Pluck("post_id", &likedIDs).Error; err != nil {
		return nil, fmt.Errorf("query liked posts: %w", err)
	}
	for _, id := range likedIDs {
		liked[id] = struct{}{}
	}
	return liked, nil
}

func (s *PostService) isLiked(postID, userID uint) (bool, error) {
	var count int64
	if err := s.db.Table("post_likes").
		Where("post_id = ? AND user_id = ?", postID, userID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("query like: %w", err)
	}
	return count > 0, nil
}

func (s *PostService) activePost(id uint) (*db.Post, error) {
	var post db.Post
	if err := s.db.Preload("User").Preload("Tags").Preload("Media").
		Where("is_deleted = ?", false).First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, fmt.Errorf("get post: %w", err)
	}
	return &post, nil
}

// BuildPostOutputs 把模型批量转换为输出视图，计数类字段按 ID 集合聚合查询。
func (s *PostService) BuildPostOutputs(posts []db.Post, viewerID uint) ([]PostOut, error) {
	items := make([]PostOut, 0, len(posts))
	if len(posts) == 0 {
		return items, nil
	}

	ids := make([]uint, 0, len(posts))
	for _, post := range posts {
		ids = append(ids, post.ID)
	}

	likeCounts, err := s.groupCount("post_likes", "post_id", "post_id IN ?", ids)
	if err != nil {
		return nil, err
	}

	replyCounts, err := s.postGroupCount("parent_id", ids)
	if err != nil {
		return nil, err
	}

	repostCounts, err := s.postGroupCount("repost_of_id", ids)
	if err != nil {
		return nil, err
	}

	likedSet, err := s.likedPostIDs(viewerID, ids)
	if err != nil {
		return nil, err
	}

	for _, post := range posts {
		tags := make([]string, 0, len(post.Tags))
		for _, tag := range post.Tags {
			tags = append(tags, tag.Name)
		}

		media := make([]MediaOut, 0, len(post.Media))
		for _, m := range post.Media {
			media = append(media, MediaOut{
				URL:       m.URL,
				MediaType: m.MediaType,
				Width:     m.Width,
				Height:    m.Height,
				AltText:   m.AltText,
			})
		}

		_, isLiked := likedSet[post.ID]
		items = append(items, PostOut{
			ID:       post.ID,
			Body:     post.Body,
			BodyHTML: renderBodyHTML(post.Body),
			Author: AuthorOut{
				ID:          post.User.ID,
				Username:    post.User.Username,
				DisplayName: post.User.DisplayName,
			},
			Tags:        tags,
			LikeCount:   likeCounts[post.ID],
			ReplyCount:  replyCounts[post.ID],
			RepostCount: repostCounts[post.ID],
			IsLiked:     isLiked,
			Media:       media,
			ParentID:    post.ParentID,
			RepostOfID:  post.RepostOfID,
			CreatedAt:   post.CreatedAt,
		})
	}

	return items, nil
}

type groupCountRow struct {
	Key   uint
	Count int64
}

func (s *PostService) groupCount(table, keyColumn, where string, ids []uint) (map[uint]int64, error) {
	var rows []groupCountRow
	if err := s.db.Table(table).
		Select(fmt.Sprintf("%s AS key, COUNT(*) AS count", keyColumn)).
		Where(where, ids).
		Group(keyColumn).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("group count %s: %w", table, err)
	}

	counts := make(map[uint]int64, len(rows))
	for _, row := range rows {
		counts[row.Key] = row.Count
	}
	return counts, nil
}

func (s *PostService) postGroupCount(keyColumn string, ids []uint) (map[uint]int64, error) {
	var rows []groupCountRow
	if err := s.db.Model(&db.Post{}).
		Select(fmt.Sprintf("%s AS key, COUNT(*) AS count", keyColumn)).
		Where(fmt.Sprintf("%s IN ? AND is_deleted = ?", keyColumn), ids, false).
		Group(keyColumn).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("group count posts by %s: %w", keyColumn, err)
	}

	counts := make(map[uint]int64, len(rows))
	for _, row := range rows {
		counts[row.Key] = row.Count
	}
	return counts, nil
}

// clampPage 把分页参数收敛到契约范围：limit 1..100（默认 20），offset ≥ 0。
func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
