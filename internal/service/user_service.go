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
	ErrUserNotFound        = errors.New("user not found")
	ErrSelfFollow          = errors.New("users cannot follow themselves")
	ErrProfileFieldTooLong = errors.New("profile field exceeds maximum length")
)

const (
	maxDisplayNameLength  = 50
	maxProfileFieldLength = 500
)

// UserService 负责用户资料读取与关注关系维护。
type UserService struct {
	db *gorm.DB
}

// NewUserService 构造 UserService。
func NewUserService(gdb *gorm.DB) *UserService {
	return &UserService{db: gdb}
}

// UserBrief 是用户的摘要视图。
type UserBrief struct {
	ID           uint   `json:"id"`
	Username     string `json:"username"`
	DisplayName  string `json:"display_name"`
	ProfileImage string `json:"profile_image"`
}

// UserOut 是用户公开资料视图。
type UserOut struct {
	ID             uint      `json:"id"`
	Username       string    `json:"username"`
	DisplayName    string    `json:"display_name"`
	Bio            string    `json:"bio"`
	ProfileImage   string    `json:"profile_image"`
	FollowerCount  int64     `json:"follower_count"`
	FollowingCount int64     `json:"following_count"`
	PostCount      int64     `json:"post_count"`
	IsFollowing    bool      `json:"is_following"`
	CreatedAt      time.Time `json:"created_at"`
}

// UserPrivateOut 是用户查看自己资料时的视图，比公开资料多出账号状态字段。
// 凭据类信息（邮箱、密码）由外部认证服务持有，不在本服务的模型里。
type UserPrivateOut struct {
	UserOut
	IsAdmin   bool      `json:"is_admin"`
	IsActive  bool      `json:"is_active"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProfileUpdate 描述资料的部分更新，nil 字段保持不变。
// 空字符串是合法值（用于清空 bio 等字段）。
type ProfileUpdate struct {
	DisplayName  *string
	Bio          *string
	ProfileImage *string
}

// UserPage 是分页后的用户列表。
type UserPage struct {
	Items   []UserBrief `json:"items"`
	Total   int64       `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
}

// FollowResult 是关注操作的输出，JSON 字段与客户端契约一一对应。
type FollowResult struct {
	Following     bool  `json:"following"`
	FollowerCount int64 `json:"follower_count"`
}

// FindByUsername 按用户名查找活跃用户。
func (s *UserService) FindByUsername(username string) (*db.User, error) {
	var user db.User
	if err := s.db.Where("username = ? AND is_active = ?", strings.ToLower(strings.TrimSpace(username)), true).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

// Profile 返回用户公开资料。viewerID 为 0 时 is_following 恒为 false。
func (s *UserService) Profile(username string, viewerID uint) (*UserOut, error) {
	user, err := s.FindByUsername(username)
	if err != nil {
		return nil, err
	}

	followerCount, err := s.followerCount(user.ID)
	if err != nil {
		return nil, err
	}

	var followingCount int64
	if err := s.db.Table(db.FollowTableName).
		Where("follower_id = ?", user.ID).Count(&followingCount).Error; err != nil {
		return nil, fmt.Errorf("count following: %w", err)
	}

	var postCount int64
	if err := s.db.Model(&db.Post{}).
		Where("user_id = ? AND is_deleted = ?", user.ID, false).Count(&postCount).Error; err != nil {
		return nil, fmt.Errorf("count posts: %w", err)
	}

	isFollowing := false
	if viewerID != 0 && viewerID != user.ID {
		isFollowing, err = s.isFollowing(viewerID, user.ID)
		if err != nil {
			return nil, err
		}
	}

	return &UserOut{
		ID:             user.ID,
		Username:       user.Username,
		DisplayName:    user.DisplayName,
		Bio:            user.Bio,
		ProfileImage:   user.ProfileImage,
		FollowerCount:  followerCount,
		FollowingCount: followingCount,
		PostCount:      postCount,
		IsFollowing:    isFollowing,
		CreatedAt:      user.CreatedAt,
	}, nil
}

// MyProfile 返回当前用户自己的资料视图。
func (s *UserService) MyProfile(userID uint) (*UserPrivateOut, error) {
	var user db.User
	if err := s.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	public, err := s.Profile(user.Username, 0)
	if err != nil {
		return nil, err
	}

	return &UserPrivateOut{
		UserOut:   *public,
		IsAdmin:   user.IsAdmin,
		IsActive:  user.IsActive,
		UpdatedAt: user.UpdatedAt,
	}, nil
}

// UpdateProfile 部分更新当前用户的资料，只改给出的字段。
func (s *UserService) UpdateProfile(userID uint, input ProfileUpdate) (*UserPrivateOut, error) {
	updates := map[string]interface{}{}

	if input.DisplayName != nil {
		name := strings.TrimSpace(*input.DisplayName)
		if len([]rune(name)) > maxDisplayNameLength {
			return nil, ErrProfileFieldTooLong
		}
		updates["display_name"] = name
	}
	if input.Bio != nil {
		bio := strings.TrimSpace(*input.Bio)
		if len([]rune(bio)) > maxProfileFieldLength {
			return nil, ErrProfileFieldTooLong
		}
		updates["bio"] = bio
	}
	if input.ProfileImage != nil {
		image := strings.TrimSpace(*input.ProfileImage)
		if len([]rune(image)) > maxProfileFieldLength {
			return nil, ErrProfileFieldTooLong
		}
		updates["profile_image"] = image
	}

	if len(updates) > 0 {
		result := s.db.Model(&db.User{}).Where("id = ?", userID).Updates(updates)
		if result.Error != nil {
			return nil, fmt.Errorf("update profile: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil, ErrUserNotFound
		}
	}

	return s.MyProfile(userID)
}

// Follow 关注指定用户。重复关注是幂等的，自关注被拒绝。
func (s *UserService) Follow(username string, followerID uint) (*FollowResult, error) {
	return s.setFollowing(username, followerID, true)
}

// Unfollow 取消关注。未关注时取消是无害的空操作。
func (s *UserService) Unfollow(username string, followerID uint) (*FollowResult, error) {
	return s.setFollowing(username, followerID, false)
}

// ToggleFollow 翻转关注状态。
func (s *UserService) ToggleFollow(username string, followerID uint) (*FollowResult, error) {
	target, err := s.FindByUsername(username)
	if err != nil {
		return nil, err
	}
	if target.ID == followerID {
		return nil, ErrSelfFollow
	}

	following, err := s.isFollowing(followerID, target.ID)
	if err != nil {
		return nil, err
	}
	return s.applyFollow(target, followerID, !following)
}

// Followers 返回关注该用户的用户分页列表。
func (s *UserService) Followers(username string, limit, offset int) (*UserPage, error) {
	user, err := s.FindByUsername(username)
	if err != nil {
		return nil, err
	}
	return s.followPage("followee_id", "follower_id", user.ID, limit, offset)
}

// FollowingList 返回该用户关注的用户分页列表。
func (s *UserService) FollowingList(username string, limit, offset int) (*UserPage, error) {
	user, err := s.FindByUsername(username)
	if err != nil {
		return nil, err
	}
	return s.followPage("follower_id", "followee_id", user.ID, limit, offset)
}

func (s *UserService) setFollowing(username string, followerID uint, following bool) (*FollowResult, error) {
	target, err := s.FindByUsername(username)
	if err != nil {
		return nil, err
	}
	if target.ID == followerID {
		return nil, ErrSelfFollow
	}
	return s.applyFollow(target, followerID, following)
}

func (s *UserService) applyFollow(target *db.User, followerID uint, following bool) (*FollowResult, error) {
	follower := db.User{Model: gorm.Model{ID: followerID}}
	assoc := s.db.Model(&follower).Association("Following")

	var err error
	if following {
		err = assoc.Append(&db.User{Model: gorm.Model{ID: target.ID}})
	} else {
		err = assoc.Delete(&db.User{Model: gorm.Model{ID: target.ID}})
	}
	if err != nil {
		return nil, fmt.Errorf("update follow: %w", err)
	}

	count, err := s.followerCount(target.ID)
	if err != nil {
		return nil, err
	}

	return &FollowResult{Following: following, FollowerCount: count}, nil
}

func (s *UserService) isFollowing(followerID, followeeID uint) (bool, error) {
	var count int64
	if err := s.db.Table(db.FollowTableName).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("query follow: %w", err)
	}
	return count > 0, nil
}

func (s *UserService) followerCount(userID uint) (int64, error) {
	var count int64
	if err := s.db.Table(db.FollowTableName).
		Where("followee_id = ?", userID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count followers: %w", err)
	}
	return count, nil
}

func (s *UserService) followPage(whereColumn, selectColumn string, userID uint, limit, offset int) (*UserPage, error) {
	limit, offset = clampPage(limit, offset)

	base := s.db.Table(db.FollowTableName).Where(fmt.Sprintf("%s = ?", whereColumn), userID)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count follow edges: %w", err)
	}

	var ids []uint
	if err := s.db.Table(db.FollowTableName).
		Where(fmt.Sprintf("%s = ?", whereColumn), userID).
		Order(fmt.Sprintf("%s ASC", selectColumn)).
		Limit(limit).Offset(offset).
		Pluck(selectColumn, &ids).Error; err != nil {
		return nil, fmt.Errorf("list follow edges: %w", err)
	}

	items := make([]UserBrief, 0, len(ids))
	if len(ids) > 0 {
		var users []db.User
		if err := s.db.Where("id IN ?", ids).Find(&users).Error; err != nil {
			return nil, fmt.Errorf("load users: %w", err)
		}
		byID := make(map[uint]db.User, len(users))
		for _, user := range users {
			byID[user.ID] = user
		}
		for _, id := range ids {
			user, ok := byID[id]
			if !ok {
				continue
			}
			items = append(items, UserBrief{
				ID:           user.ID,
				Username:     user.Username,
				DisplayName:  user.DisplayName,
				ProfileImage: user.ProfileImage,
			})
		}
	}

	return &UserPage{
		Items:   items,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: int64(offset+len(items)) < total,
	}, nil
}
