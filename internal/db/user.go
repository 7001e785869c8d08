package db

import "gorm.io/gorm"

// User 定义了用户模型。
// 注册、登录与密码管理由外部认证服务负责，本服务只消费会话中的用户身份，
// 因此这里不保存任何凭据字段。
type User struct {
	gorm.Model
	Username     string `gorm:"uniqueIndex;not null"`
	DisplayName  string
	Bio          string
	ProfileImage string
	IsAdmin      bool `gorm:"default:false"`
	IsActive     bool `gorm:"default:true"`

	// Following 是本用户关注的用户集合，连接表 user_follows。
	// 粉丝方向通过连接表反查，不在模型上维护双向关联。
	Following []*User `gorm:"many2many:user_follows;joinForeignKey:FollowerID;joinReferences:FolloweeID"`
}

// FollowTableName 是关注关系连接表名，供需要直查连接表的场景使用。
const FollowTableName = "user_follows"
