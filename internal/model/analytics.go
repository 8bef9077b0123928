package model

import "time"

// Activity 表示一条近期状态变更，由服务端按时间倒序给出。
type Activity struct {
	Company  string    `json:"company"`
	Position string    `json:"position"`
	Status   Status    `json:"status"`
	Date     time.Time `json:"date"`
}

// Analytics 表示服务端计算的统计快照。
// 它是某一时刻的聚合结果，本地不做增量维护，
// 在每次成功的写操作与身份切换后重新拉取。
type Analytics struct {
	Total          int              `json:"total"`
	ByStatus       map[Status]int   `json:"byStatus"`
	ByPriority     map[Priority]int `json:"byPriority"`
	RecentActivity []Activity       `json:"recentActivity"`
}

// BoardColumn 描述看板的一列。
type BoardColumn struct {
	Status Status
	Title  string
	Color  string
}

// BoardColumns 是仪表盘看板展示的四列，顺序固定。
var BoardColumns = []BoardColumn{
	{Status: StatusWishlist, Title: "Wishlist", Color: "#94a3b8"},
	{Status: StatusApplied, Title: "Applied", Color: "#3b82f6"},
	{Status: StatusInterview, Title: "Interview", Color: "#f59e0b"},
	{Status: StatusOffer, Title: "Offer", Color: "#10b981"},
}

// StatusColors 给出每个状态的展示颜色。
var StatusColors = map[Status]string{
	StatusWishlist:  "#94a3b8",
	StatusApplied:   "#3b82f6",
	StatusInterview: "#f59e0b",
	StatusOffer:     "#10b981",
	StatusRejected:  "#ef4444",
	StatusAccepted:  "#8b5cf6",
	StatusDeclined:  "#6b7280",
}
