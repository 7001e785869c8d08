package handler

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// 登录与令牌签发由外部认证服务完成，它把 user_id 写进共享的会话存储；
// 本服务只读取会话，解析出当前用户身份。

// AuthRequired 要求请求携带已认证的会话，否则返回 401。
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := sessionUserID(c); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "需要登录"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// currentUserID 返回会话中的用户 ID，未登录时返回 0。
// 公开接口用它在「匿名可读」的前提下为已登录用户补充个性化字段；
// 挂在 AuthRequired 之后的路由上返回值一定非 0。
func currentUserID(c *gin.Context) uint {
	id, _ := sessionUserID(c)
	return id
}

func sessionUserID(c *gin.Context) (uint, bool) {
	session := sessions.Default(c)
	raw := session.Get("user_id")
	if raw == nil {
		return 0, false
	}

	// 会话序列化可能还原出不同的整数类型
	switch v := raw.(type) {
	case uint:
		return v, v != 0
	case int:
		if v > 0 {
			return uint(v), true
		}
	case int64:
		if v > 0 {
			return uint(v), true
		}
	case uint64:
		if v > 0 {
			return uint(v), true
		}
	case float64:
		if v > 0 {
			return uint(v), true
		}
	}
	return 0, false
}
