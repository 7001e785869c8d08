package service

import (
	"context"
	"testing"
	"time"

	"github.com/switter/internal/db"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupViewStoreTestDB(t *testing.T) func() {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	if err := gdb.AutoMigrate(&db.User{}, &db.Post{}, &db.Tag{}, &db.Media{}, &db.PostView{}, &db.PostViewStat{}); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}

	db.DB = gdb

	return func() {
		sqlDB, err := db.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
}

func seenBatch(pairs map[uint][]uint) *ViewBatch {
	batch := NewViewBatch()
	now := time.Now()
	for userID, postIDs := range pairs {
		batch.Seen[userID] = make(map[uint]time.Time, len(postIDs))
		for _, postID := range postIDs {
			batch.Seen[userID][postID] = now
			batch.Delta[postID]++
		}
	}
	return batch
}

func TestSaveViewsInsertsAndCounts(t *testing.T) {
	cleanup := setupViewStoreTestDB(t)
	defer cleanup()

	store := NewGormViewStore(db.DB)
	batch := seenBatch(map[uint][]uint{1: {10}, 2: {10, 20}})

	if err := store.SaveViews(context.Background(), batch); err != nil {
		t.Fatalf("SaveViews returned error: %v", err)
	}

	var rows int64
	db.DB.Model(&db.PostView{}).Count(&rows)
	if rows != 3 {
		t.Fatalf("expected 3 seen records, got %d", rows)
	}

	count, err := store.ViewCount(10)
	if err != nil {
		t.Fatalf("ViewCount returned error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected view count 2 for post 10, got %d", count)
	}
}

// 同一批次重放（模拟部分成功后的整批重试）不得产生重复行或重复计数。
func TestSaveViewsRetriedBatchDoesNotDoubleCount(t *testing.T) {
	cleanup := setupViewStoreTestDB(t)
	defer cleanup()

	store := NewGormViewStore(db.DB)
	batch := seenBatch(map[uint][]uint{1: {10}, 2: {10}})

	for i := 0; i < 3; i++ {
		if err := store.SaveViews(context.Background(), batch); err != nil {
			t.Fatalf("SaveViews run %d returned error: %v", i, err)
		}
	}

	var rows int64
	db.DB.Model(&db.PostView{}).Count(&rows)
	if rows != 2 {
		t.Fatalf("expected 2 seen records, got %d", rows)
	}

	count, _ := store.ViewCount(10)
	if count != 2 {
		t.Fatalf("expected view count 2 after retries, got %d", count)
	}
}

func TestSaveViewsCountsAreMonotonic(t *testing.T) {
	cleanup := setupViewStoreTestDB(t)
	defer cleanup()

	store := NewGormViewStore(db.DB)

	previous := int64(0)
	for i := 0; i < 5; i++ {
		batch := seenBatch(map[uint][]uint{uint(i + 1): {10}})
		if err := store.SaveViews(context.Background(), batch); err != nil {
			t.Fatalf("SaveViews returned error: %v", err)
		}

		count, err := store.ViewCount(10)
		if err != nil {
			t.Fatalf("ViewCount returned error: %v", err)
		}
		if count < previous {
			t.Fatalf("view count decreased: %d -> %d", previous, count)
		}
		previous = count
	}

	if previous != 5 {
		t.Fatalf("expected final count 5, got %d", previous)
	}
}

func TestSeenPostIDs(t *testing.T) {
	cleanup := setupViewStoreTestDB(t)
	defer cleanup()

	store := NewGormViewStore(db.DB)
	if err := store.SaveViews(context.Background(), seenBatch(map[uint][]uint{1: {10, 20}})); err != nil {
		t.Fatalf("SaveViews returned error: %v", err)
	}

	seen, err := store.SeenPostIDs(1, []uint{10, 20, 30})
	if err != nil {
		t.Fatalf("SeenPostIDs returned error: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("expected 2 seen posts, got %d", len(seen))
	}
	if _, ok := seen[30]; ok {
		t.Fatal("post 30 should not be seen")
	}

	empty, err := store.SeenPostIDs(1, nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty result for empty input, got %v (%v)", empty, err)
	}
}

func TestFollowing(t *testing.T) {
	cleanup := setupViewStoreTestDB(t)
	defer cleanup()

	alice := db.User{Username: "alice"}
	bob := db.User{Username: "bob"}
	carol := db.User{Username: "carol"}
	for _, u := range []*db.User{&alice, &bob, &carol} {
		if err := db.DB.Create(u).Error; err != nil {
			t.Fatalf("failed to create user: %v", err)
		}
	}

	if err := db.DB.Model(&alice).Association("Following").Append(&bob, &carol); err != nil {
		t.Fatalf("failed to create follow edges: %v", err)
	}

	store := NewGormViewStore(db.DB)
	ids, err := store.Following(alice.ID)
	if err != nil {
		t.Fatalf("Following returned error: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 followees, got %d", len(ids))
	}

	none, err := store.Following(bob.ID)
	if err != nil || len(none) != 0 {
		t.Fatalf("expected bob to follow nobody, got %v (%v)", none, err)
	}
}

// 一个刷盘周期内上报 5000 个不同的 (user, post) 对，刷盘后应产生
// 恰好 5000 条已看记录和正确的聚合计数，且重复的刷盘 tick 不产生重复。
func TestFlushCycleWithFiveThousandPairs(t *testing.T) {
	cleanup := setupViewStoreTestDB(t)
	defer cleanup()

	cache := NewViewCache()
	store := NewGormViewStore(db.DB)
	flusher := NewViewFlusher(cache, store, time.Hour, 4)

	const users = 50
	const posts = 100

	postIDs := make([]uint, posts)
	for p := 0; p < posts; p++ {
		postIDs[p] = uint(p + 1)
	}
	for u := 1; u <= users; u++ {
		cache.RecordViews(uint(u), postIDs)
	}

	if err := flusher.FlushOnce(context.Background()); err != nil {
		t.Fatalf("flush returned error: %v", err)
	}
	// 空周期与重复 tick
	if err := flusher.FlushOnce(context.Background()); err != nil {
		t.Fatalf("second flush returned error: %v", err)
	}

	var rows int64
	db.DB.Model(&db.PostView{}).Count(&rows)
	if rows != users*posts {
		t.Fatalf("expected %d seen records, got %d", users*posts, rows)
	}

	count, err := store.ViewCount(1)
	if err != nil {
		t.Fatalf("ViewCount returned error: %v", err)
	}
	if count != users {
		t.Fatalf("expected view count %d for post 1, got %d", users, count)
	}
}

// 进程重启至多丢失一个刷盘周期内的待落库事件，之前已刷盘的数据不受影响。
func TestRestartLosesAtMostOneFlushWindow(t *testing.T) {
	cleanup := setupViewStoreTestDB(t)
	defer cleanup()

	store := NewGormViewStore(db.DB)

	cache := NewViewCache()
	cache.RecordViews(1, []uint{10})
	if err := store.SaveViews(context.Background(), cache.DrainAndSwap()); err != nil {
		t.Fatalf("SaveViews returned error: %v", err)
	}

	// 第二个周期的事件尚未刷盘，进程重启（缓存重建）
	cache.RecordViews(1, []uint{20})
	cache = NewViewCache()

	seen, err := store.SeenPostIDs(1, []uint{10, 20})
	if err != nil {
		t.Fatalf("SeenPostIDs returned error: %v", err)
	}
	if _, ok := seen[10]; !ok {
		t.Fatal("flushed data must survive restart")
	}
	if _, ok := seen[20]; ok {
		t.Fatal("unflushed window should be lost, not partially applied")
	}
	if cache.PendingPairs() != 0 {
		t.Fatal("rebuilt cache must start empty")
	}
}
