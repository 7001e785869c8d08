package service

import (
	"sync"
	"time"
)

// ViewBatch 是一次 drain 得到的待落库数据。
// Seen 按用户聚合「已看但未落库」的帖子及首次上报时间；
// Delta 按帖子聚合去重后的新增浏览数（同一用户重复上报只计一次）。
type ViewBatch struct {
	Seen  map[uint]map[uint]time.Time
	Delta map[uint]int64
}

// NewViewBatch 返回空批次。
func NewViewBatch() *ViewBatch {
	return &ViewBatch{
		Seen:  make(map[uint]map[uint]time.Time),
		Delta: make(map[uint]int64),
	}
}

// Empty 判断批次是否没有任何待落库数据。
func (b *ViewBatch) Empty() bool {
	return b == nil || (len(b.Seen) == 0 && len(b.Delta) == 0)
}

// Pairs 返回批次内 (user, post) 对的数量。
func (b *ViewBatch) Pairs() int {
	if b == nil {
		return 0
	}
	total := 0
	for _, posts := range b.Seen {
		total += len(posts)
	}
	return total
}

// Merge 把 other 并入本批次。同一 (user, post) 对保留更早的上报时间，
// 且不会重复累计 Delta，保证重试合并后的计数仍是按去重口径。
func (b *ViewBatch) Merge(other *ViewBatch) {
	if other == nil {
		return
	}
	for userID, posts := range other.Seen {
		dst, ok := b.Seen[userID]
		if !ok {
			dst = make(map[uint]time.Time, len(posts))
			b.Seen[userID] = dst
		}
		for postID, at := range posts {
			if existing, ok := dst[postID]; ok {
				if at.Before(existing) {
					dst[postID] = at
				}
				// 两个批次都包含该对时，只保留一份 Delta 贡献
				b.Delta[postID]--
				if b.Delta[postID] <= 0 {
					delete(b.Delta, postID)
				}
				continue
			}
			dst[postID] = at
		}
	}
	for postID, delta := range other.Delta {
		b.Delta[postID] += delta
		if b.Delta[postID] <= 0 {
			delete(b.Delta, postID)
		}
	}
}

// ViewCache 是进程内的浏览事件累积器：写路径高频调用 RecordViews，
// 刷盘任务周期性调用 DrainAndSwap 原子地取走全部待落库状态。
// 待落库结构只归本结构体所有，所有访问都在短临界区内完成，
// 临界区内不做任何 I/O。
type ViewCache struct {
	mu    sync.Mutex
	seen  map[uint]map[uint]time.Time
	delta map[uint]int64

	now func() time.Time
}

// NewViewCache 创建空缓存。
func NewViewCache() *ViewCache {
	return &ViewCache{
		seen:  make(map[uint]map[uint]time.Time),
		delta: make(map[uint]int64),
		now:   time.Now,
	}
}

// RecordViews 记录用户看过的一组帖子。postIDs 为空时是空操作。
// 对同一 (user, post) 重复上报是幂等的：已看集合不变，Delta 也只累计一次。
func (c *ViewCache) RecordViews(userID uint, postIDs []uint) {
	if len(postIDs) == 0 {
		return
	}

	observedAt := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	posts, ok := c.seen[userID]
	if !ok {
		posts = make(map[uint]time.Time, len(postIDs))
		c.seen[userID] = posts
	}

	for _, postID := range postIDs {
		if _, seen := posts[postID]; seen {
			continue
		}
		posts[postID] = observedAt
		c.delta[postID]++
	}
}

// SnapshotPendingSeen 返回指定用户尚未落库的已看帖子集合副本。
// 供信息流读路径合并使用，调用方可自由持有返回值。
func (c *ViewCache) SnapshotPendingSeen(userID uint) map[uint]struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	posts := c.seen[userID]
	if len(posts) == 0 {
		return nil
	}

	snapshot := make(map[uint]struct{}, len(posts))
	for postID := range posts {
		snapshot[postID] = struct{}{}
	}
	return snapshot
}

// SnapshotPendingDeltas 返回尚未落库的浏览增量副本，供热门排序合并使用。
func (c *ViewCache) SnapshotPendingDeltas() map[uint]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.delta) == 0 {
		return nil
	}

	snapshot := make(map[uint]int64, len(c.delta))
	for postID, delta := range c.delta {
		snapshot[postID] = delta
	}
	return snapshot
}

// DrainAndSwap 原子地用空结构替换当前待落库状态，并把旧状态交给调用方。
// 这是写路径与刷盘路径唯一的同步点：交换前记录的事件一定在返回的批次里，
// 交换后记录的事件一定不在。
func (c *ViewCache) DrainAndSwap() *ViewBatch {
	c.mu.Lock()
	defer c.mu.Unlock()

	batch := &ViewBatch{Seen: c.seen, Delta: c.delta}
	c.seen = make(map[uint]map[uint]time.Time)
	c.delta = make(map[uint]int64)
	return batch
}

// PendingPairs 返回当前待落库的 (user, post) 对数量。
func (c *ViewCache) PendingPairs() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	for _, posts := range c.seen {
		total += len(posts)
	}
	return total
}
