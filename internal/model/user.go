package model

import "time"

// User 表示当前登录用户的公开信息。
type User struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Session 表示一次已认证会话。
// 约束：Token 与 User 必须同时存在或同时缺失，不允许只有其一。
type Session struct {
	Token string
	User  User
}
