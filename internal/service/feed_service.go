package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/switter/internal/cache"
	"github.com/switter/internal/db"
	"gorm.io/gorm"
)

// RankingPolicy 控制已看帖子在关注信息流中的排序方式。
type RankingPolicy string

const (
	// RankingUnseenFirst 先未看后已看，各组内按时间倒序（默认策略）
	RankingUnseenFirst RankingPolicy = "unseen_first"
	// RankingRecency 纯时间倒序，不区分已看
	RankingRecency RankingPolicy = "recency"
)

// ParseRankingPolicy 把配置值转换为排序策略，未知值回退到默认策略。
func ParseRankingPolicy(raw string) RankingPolicy {
	if RankingPolicy(raw) == RankingRecency {
		return RankingRecency
	}
	return RankingUnseenFirst
}

// FeedService 是信息流读路径：从持久层取候选帖，合并尚未刷盘的已看状态后
// 排序分页。已看状态 = 持久化的已看记录 ∪ 浏览缓存的实时快照，
// 保证刚上报还没刷盘的浏览不会让帖子被错误地当作未看。
type FeedService struct {
	db      *gorm.DB
	posts   *PostService
	views   *ViewCache
	seen    SeenReader
	graph   FollowGraph
	ranking RankingPolicy

	// windowDays 限定候选集时间窗口，0 表示不限
	windowDays int

	popular *cache.PopularFeedCache
}

// NewFeedService 构造信息流服务。popular 可以为 nil（禁用热门页缓存）。
func NewFeedService(
	gdb *gorm.DB,
	posts *PostService,
	views *ViewCache,
	seen SeenReader,
	graph FollowGraph,
	ranking RankingPolicy,
	windowDays int,
	popular *cache.PopularFeedCache,
) *FeedService {
	return &FeedService{
		db:         gdb,
		posts:      posts,
		views:      views,
		seen:       seen,
		graph:      graph,
		ranking:    ranking,
		windowDays: windowDays,
		popular:    popular,
	}
}

// FollowingFeed 返回关注信息流：候选集是关注对象（含自己）的帖子，
// 按策略排序后分页。已看解析失败时降级为纯时间排序，而不是让请求失败。
func (s *FeedService) FollowingFeed(userID uint, limit, offset int) (*PostPage, error) {
	limit, offset = clampPage(limit, offset)

	authorIDs, err := s.graph.Following(userID)
	if err != nil {
		return nil, fmt.Errorf("resolve follow graph: %w", err)
	}
	authorIDs = append(authorIDs, userID)

	query := s.db.Model(&db.Post{}).
		Where("is_deleted = ? AND user_id IN ?", false, authorIDs)
	query = s.applyWindow(query)

	var candidates []db.Post
	if err := query.Preload("User").Preload("Tags").Preload("Media").
		Order("created_at DESC").Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("load feed candidates: %w", err)
	}

	ranked := s.rankBySeen(userID, candidates)
	return s.page(ranked, userID, limit, offset)
}

// PopularFeed 返回热门信息流：时间窗口内的帖子按「持久化浏览数 + 未刷盘增量」
// 倒序，平局按时间倒序。不套用已看状态。首页结果经由 Redis 缓存（如启用）；
// 缓存的页面是与访问者无关的，is_liked 在缓存之外按请求者单独解析。
func (s *FeedService) PopularFeed(ctx context.Context, viewerID uint, limit, offset int) (*PostPage, error) {
	limit, offset = clampPage(limit, offset)

	cacheable := s.popular != nil && offset == 0 && limit == 20
	if cacheable {
		var cached PostPage
		hit, err := s.popular.Get(ctx, &cached)
		if err != nil {
			// 缓存故障只影响命中率，不影响请求
			log.Printf("[feed] popular cache read failed: %v", err)
		} else if hit {
			s.overlayLiked(viewerID, &cached)
			return &cached, nil
		}
	}

	query := s.db.Model(&db.Post{}).Where("is_deleted = ?", false)
	query = s.applyWindow(query)

	var candidates []db.Post
	if err := query.Preload("User").Preload("Tags").Preload("Media").
		Order("created_at DESC").Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("load popular candidates: %w", err)
	}

	scores, err := s.viewScores(candidates)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		si, sj := scores[candidates[i].ID], scores[candidates[j].ID]
		if si != sj {
			return si > sj
		}
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})

	page, err := s.page(candidates, 0, limit, offset)
	if err != nil {
		return nil, err
	}

	if cacheable {
		if err := s.popular.Set(ctx, page); err != nil {
			log.Printf("[feed] popular cache write failed: %v", err)
		}
	}

	s.overlayLiked(viewerID, page)
	return page, nil
}

// overlayLiked 为已登录的请求者在共享页面上补充 is_liked。
// 解析失败只损失点赞标记，不让请求失败。
func (s *FeedService) overlayLiked(viewerID uint, page *PostPage) {
	if viewerID == 0 || len(page.Items) == 0 {
		return
	}

	ids := make([]uint, 0, len(page.Items))
	for _, item := range page.Items {
		ids = append(ids, item.ID)
	}

	liked, err := s.posts.likedPostIDs(viewerID, ids)
	if err != nil {
		log.Printf("[feed] liked-state lookup failed for user %d: %v", viewerID, err)
		return
	}

	for i := range page.Items {
		_, ok := liked[page.Items[i].ID]
		page.Items[i].IsLiked = ok
	}
}

// rankBySeen 按配置的策略排序候选集。candidates 必须已按时间倒序。
func (s *FeedService) rankBySeen(userID uint, candidates []db.Post) []db.Post {
	if s.ranking == RankingRecency || len(candidates) == 0 {
		return candidates
	}

	ids := make([]uint, 0, len(candidates))
	for _, post := range candidates {
		ids = append(ids, post.ID)
	}

	durable, err := s.seen.SeenPostIDs(userID, ids)
	if err != nil {
		// 降级：已看状态拿不到时退回纯时间排序，请求本身不失败
		log.Printf("[feed] seen-state lookup failed for user %d, falling back to recency: %v", userID, err)
		return candidates
	}

	pending := s.views.SnapshotPendingSeen(userID)

	unseen := make([]db.Post, 0, len(candidates))
	seen := make([]db.Post, 0)
	for _, post := range candidates {
		if _, ok := durable[post.ID]; ok {
			seen = append(seen, post)
			continue
		}
		if _, ok := pending[post.ID]; ok {
			seen = append(seen, post)
			continue
		}
		unseen = append(unseen, post)
	}

	// 已看的帖子只后置，不隐藏
	return append(unseen, seen...)
}

// viewScores 返回候选帖的热度分：持久化计数加上缓存中未刷盘的增量。
func (s *FeedService) viewScores(candidates []db.Post) (map[uint]int64, error) {
	scores := make(map[uint]int64, len(candidates))
	if len(candidates) == 0 {
		return scores, nil
	}

	ids := make([]uint, 0, len(candidates))
	for _, post := range candidates {
		ids = append(ids, post.ID)
	}

	var stats []db.PostViewStat
	if err := s.db.Where("post_id IN ?", ids).Find(&stats).Error; err != nil {
		return nil, fmt.Errorf("load view stats: %w", err)
	}
	for _, stat := range stats {
		scores[stat.PostID] = stat.ViewCount
	}

	for postID, delta := range s.views.SnapshotPendingDeltas() {
		scores[postID] += delta
	}
	return scores, nil
}

// page 对排序后的候选集切片分页并构建输出。
func (s *FeedService) page(ranked []db.Post, viewerID uint, limit, offset int) (*PostPage, error) {
	total := int64(len(ranked))

	var window []db.Post
	if offset < len(ranked) {
		end := offset + limit
		if end > len(ranked) {
			end = len(ranked)
		}
		window = ranked[offset:end]
	}

	items, err := s.posts.BuildPostOutputs(window, viewerID)
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

func (s *FeedService) applyWindow(query *gorm.DB) *gorm.DB {
	if s.windowDays <= 0 {
		return query
	}
	cutoff := time.Now().AddDate(0, 0, -s.windowDays)
	return query.Where("created_at >= ?", cutoff)
}
