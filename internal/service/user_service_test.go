package service

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/switter/internal/db"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupUserTestDB(t *testing.T) func() {
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

func TestFindByUsername(t *testing.T) {
	cleanup := setupUserTestDB(t)
	defer cleanup()

	for _, u := range []db.User{
		{Username: "alice", IsActive: true},
		{Username: "ghost", IsActive: false},
	} {
		user := u
		if err := db.DB.Create(&user).Error; err != nil {
			t.Fatalf("failed to create user: %v", err)
		}
	}

	svc := NewUserService(db.DB)

	// 用户名匹配不区分大小写与首尾空白
	user, err := svc.FindByUsername("  Alice ")
	if err != nil {
		t.Fatalf("FindByUsername returned error: %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("expected alice, got %s", user.Username)
	}

	if _, err := svc.FindByUsername("nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	// 停用账号不可见
	if _, err := svc.FindByUsername("ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected deactivated user hidden, got %v", err)
	}
}

func TestFollowLifecycle(t *testing.T) {
	cleanup := setupUserTestDB(t)
	defer cleanup()

	alice := db.User{Username: "alice", IsActive: true}
	bob := db.User{Username: "bob", IsActive: true}
	for _, u := range []*db.User{&alice, &bob} {
		if err := db.DB.Create(u).Error; err != nil {
			t.Fatalf("failed to create user: %v", err)
		}
	}

	svc := NewUserService(db.DB)

	result, err := svc.Follow("bob", alice.ID)
	if err != nil {
		t.Fatalf("Follow returned error: %v", err)
	}
	if !result.Following || result.FollowerCount != 1 {
		t.Fatalf("expected following=true count=1, got %+v", result)
	}

	// 重复关注幂等
	result, err = svc.Follow("bob", alice.ID)
	if err != nil {
		t.Fatalf("repeated Follow returned error: %v", err)
	}
	if result.FollowerCount != 1 {
		t.Fatalf("expected count still 1, got %d", result.FollowerCount)
	}

	result, err = svc.ToggleFollow("bob", alice.ID)
	if err != nil {
		t.Fatalf("ToggleFollow returned error: %v", err)
	}
	if result.Following || result.FollowerCount != 0 {
		t.Fatalf("expected toggle to unfollow, got %+v", result)
	}

	// 未关注时取消是无害的
	result, err = svc.Unfollow("bob", alice.ID)
	if err != nil {
		t.Fatalf("Unfollow returned error: %v", err)
	}
	if result.Following || result.FollowerCount != 0 {
		t.Fatalf("expected no-op unfollow, got %+v", result)
	}
}

func TestSelfFollowRejected(t *testing.T) {
	cleanup := setupUserTestDB(t)
	defer cleanup()

	alice := db.User{Username: "alice", IsActive: true}
	if err := db.DB.Create(&alice).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	svc := NewUserService(db.DB)
	if _, err := svc.Follow("alice", alice.ID); !errors.Is(err, ErrSelfFollow) {
		t.Fatalf("expected ErrSelfFollow, got %v", err)
	}
	if _, err := svc.ToggleFollow("alice", alice.ID); !errors.Is(err, ErrSelfFollow) {
		t.Fatalf("expected ErrSelfFollow on toggle, got %v", err)
	}
}

func TestProfileCounts(t *testing.T) {
	cleanup := setupUserTestDB(t)
	defer cleanup()

	alice := db.User{Username: "alice", DisplayName: "Alice", Bio: "hi", IsActive: true}
	bob := db.User{Username: "bob", IsActive: true}
	carol := db.User{Username: "carol", IsActive: true}
	for _, u := range []*db.User{&alice, &bob, &carol} {
		if err := db.DB.Create(u).Error; err != nil {
			t.Fatalf("failed to create user: %v", err)
		}
	}

	svc := NewUserService(db.DB)
	if _, err := svc.Follow("alice", bob.ID); err != nil {
		t.Fatalf("Follow returned error: %v", err)
	}
	if _, err := svc.Follow("alice", carol.ID); err != nil {
		t.Fatalf("Follow returned error: %v", err)
	}
	if _, err := svc.Follow("bob", alice.ID); err != nil {
		t.Fatalf("Follow returned error: %v", err)
	}

	posts := NewPostService(db.DB)
	if _, err := posts.Create(PostInput{Body: "visible"}, alice.ID); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	deleted, err := posts.Create(PostInput{Body: "gone"}, alice.ID)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := posts.Delete(deleted.ID, alice.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	profile, err := svc.Profile("alice", bob.ID)
	if err != nil {
		t.Fatalf("Profile returned error: %v", err)
	}
	if profile.FollowerCount != 2 || profile.FollowingCount != 1 {
		t.Fatalf("expected followers=2 following=1, got %d/%d", profile.FollowerCount, profile.FollowingCount)
	}
	// 软删除的帖子不计入
	if profile.PostCount != 1 {
		t.Fatalf("expected post_count=1, got %d", profile.PostCount)
	}
	if !profile.IsFollowing {
		t.Fatal("expected is_following=true for follower viewer")
	}

	anonymous, err := svc.Profile("alice", 0)
	if err != nil {
		t.Fatalf("Profile returned error: %v", err)
	}
	if anonymous.IsFollowing {
		t.Fatal("expected is_following=false for anonymous viewer")
	}
}

func TestMyProfile(t *testing.T) {
	cleanup := setupUserTestDB(t)
	defer cleanup()

	alice := db.User{Username: "alice", DisplayName: "Alice", Bio: "hi", IsAdmin: true, IsActive: true}
	if err := db.DB.Create(&alice).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	svc := NewUserService(db.DB)
	profile, err := svc.MyProfile(alice.ID)
	if err != nil {
		t.Fatalf("MyProfile returned error: %v", err)
	}
	if profile.Username != "alice" || !profile.IsAdmin || !profile.IsActive {
		t.Fatalf("unexpected private profile: %+v", profile)
	}

	if _, err := svc.MyProfile(9999); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	cleanup := setupUserTestDB(t)
	defer cleanup()

	alice := db.User{Username: "alice", DisplayName: "Alice", Bio: "old bio", IsActive: true}
	if err := db.DB.Create(&alice).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	svc := NewUserService(db.DB)

	// 只改给出的字段，其余保持不变
	name := "  Alice L  "
	profile, err := svc.UpdateProfile(alice.ID, ProfileUpdate{DisplayName: &name})
	if err != nil {
		t.Fatalf("UpdateProfile returned error: %v", err)
	}
	if profile.DisplayName != "Alice L" {
		t.Fatalf("expected trimmed display name, got %q", profile.DisplayName)
	}
	if profile.Bio != "old bio" {
		t.Fatalf("expected bio untouched, got %q", profile.Bio)
	}

	// 空字符串是合法值，用于清空字段
	empty := ""
	profile, err = svc.UpdateProfile(alice.ID, ProfileUpdate{Bio: &empty})
	if err != nil {
		t.Fatalf("UpdateProfile returned error: %v", err)
	}
	if profile.Bio != "" {
		t.Fatalf("expected bio cleared, got %q", profile.Bio)
	}

	// 超长字段被拒绝
	long := strings.Repeat("长", 501)
	if _, err := svc.UpdateProfile(alice.ID, ProfileUpdate{Bio: &long}); !errors.Is(err, ErrProfileFieldTooLong) {
		t.Fatalf("expected ErrProfileFieldTooLong, got %v", err)
	}
	longName := strings.Repeat("名", 51)
	if _, err := svc.UpdateProfile(alice.ID, ProfileUpdate{DisplayName: &longName}); !errors.Is(err, ErrProfileFieldTooLong) {
		t.Fatalf("expected ErrProfileFieldTooLong for display name, got %v", err)
	}

	// 不存在的用户
	if _, err := svc.UpdateProfile(9999, ProfileUpdate{DisplayName: &name}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestFollowersPagination(t *testing.T) {
	cleanup := setupUserTestDB(t)
	defer cleanup()

	target := db.User{Username: "target", IsActive: true}
	if err := db.DB.Create(&target).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	svc := NewUserService(db.DB)
	for i := 0; i < 5; i++ {
		follower := db.User{Username: fmt.Sprintf("fan%d", i), IsActive: true}
		if err := db.DB.Create(&follower).Error; err != nil {
			t.Fatalf("failed to create follower: %v", err)
		}
		if _, err := svc.Follow("target", follower.ID); err != nil {
			t.Fatalf("Follow returned error: %v", err)
		}
	}

	page, err := svc.Followers("target", 2, 2)
	if err != nil {
		t.Fatalf("Followers returned error: %v", err)
	}
	if page.Total != 5 || len(page.Items) != 2 || !page.HasMore {
		t.Fatalf("expected total=5 items=2 has_more=true, got total=%d items=%d has_more=%v",
			page.Total, len(page.Items), page.HasMore)
	}

	last, err := svc.Followers("target", 2, 4)
	if err != nil {
		t.Fatalf("Followers returned error: %v", err)
	}
	if len(last.Items) != 1 || last.HasMore {
		t.Fatalf("expected final page of 1, got items=%d has_more=%v", len(last.Items), last.HasMore)
	}

	following, err := svc.FollowingList("fan0", 10, 0)
	if err != nil {
		t.Fatalf("FollowingList returned error: %v", err)
	}
	if following.Total != 1 || following.Items[0].Username != "target" {
		t.Fatalf("expected fan0 to follow target, got %+v", following)
	}
}
