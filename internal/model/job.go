package model

import (
	"fmt"
	"strings"
	"time"
)

// Status 表示职位在追踪看板中的阶段。
type Status string

const (
	StatusWishlist  Status = "Wishlist"
	StatusApplied   Status = "Applied"
	StatusInterview Status = "Interview"
	StatusOffer     Status = "Offer"
	StatusRejected  Status = "Rejected"
	StatusAccepted  Status = "Accepted"
	StatusDeclined  Status = "Declined"
)

// Statuses 列出全部合法状态，顺序与看板流程一致。
var Statuses = []Status{
	StatusWishlist,
	StatusApplied,
	StatusInterview,
	StatusOffer,
	StatusRejected,
	StatusAccepted,
	StatusDeclined,
}

// JobType 表示职位的工作性质。
type JobType string

const (
	JobTypeFullTime   JobType = "Full-time"
	JobTypePartTime   JobType = "Part-time"
	JobTypeContract   JobType = "Contract"
	JobTypeInternship JobType = "Internship"
	JobTypeFreelance  JobType = "Freelance"
)

// JobTypes 列出全部合法工作性质。
var JobTypes = []JobType{
	JobTypeFullTime,
	JobTypePartTime,
	JobTypeContract,
	JobTypeInternship,
	JobTypeFreelance,
}

// Priority 表示优先级。
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Priorities 列出全部合法优先级。
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

// Salary 表示薪资区间，最小最大值均可缺省。
type Salary struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// ContactPerson 表示职位的联系人信息。
type ContactPerson struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Job 表示一条被追踪的求职记录。
// - ID/CreatedAt/UpdatedAt 由服务端分配，草稿阶段为零值
// - Company/Position 持久化后必须非空
// - Status/JobType/Priority 只允许枚举值，提交前在表单层校验
type Job struct {
	ID              string         `json:"_id,omitempty"`
	Company         string         `json:"company"`
	Position        string         `json:"position"`
	Location        string         `json:"location,omitempty"`
	JobType         JobType        `json:"jobType"`
	Status          Status         `json:"status"`
	Priority        Priority       `json:"priority"`
	Salary          *Salary        `json:"salary,omitempty"`
	JobURL          string         `json:"jobUrl,omitempty"`
	Notes           string         `json:"notes,omitempty"`
	ContactPerson   *ContactPerson `json:"contactPerson,omitempty"`
	ApplicationDate *time.Time     `json:"applicationDate,omitempty"`
	InterviewDate   *time.Time     `json:"interviewDate,omitempty"`
	CreatedAt       time.Time      `json:"createdAt,omitempty"`
	UpdatedAt       time.Time      `json:"updatedAt,omitempty"`
}

var (
	statusSet   = toSet(Statuses)
	jobTypeSet  = toSet(JobTypes)
	prioritySet = toSet(Priorities)
)

func toSet[T ~string](values []T) map[T]struct{} {
	set := make(map[T]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// Valid 判断状态是否为合法枚举值。
func (s Status) Valid() bool {
	_, ok := statusSet[s]
	return ok
}

// Valid 判断工作性质是否为合法枚举值。
func (t JobType) Valid() bool {
	_, ok := jobTypeSet[t]
	return ok
}

// Valid 判断优先级是否为合法枚举值。
func (p Priority) Valid() bool {
	_, ok := prioritySet[p]
	return ok
}

// Validate 校验记录是否满足提交条件，未知枚举值在此被拒绝。
func (j Job) Validate() error {
	if strings.TrimSpace(j.Company) == "" {
		return fmt.Errorf("company required")
	}
	if strings.TrimSpace(j.Position) == "" {
		return fmt.Errorf("position required")
	}
	if !j.Status.Valid() {
		return fmt.Errorf("unknown status %q", j.Status)
	}
	if !j.JobType.Valid() {
		return fmt.Errorf("unknown job type %q", j.JobType)
	}
	if !j.Priority.Valid() {
		return fmt.Errorf("unknown priority %q", j.Priority)
	}
	return nil
}

// MatchesSearch 判断公司或职位名称是否包含给定关键词（忽略大小写），
// 空关键词匹配所有记录。
func (j Job) MatchesSearch(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(j.Company), term) ||
		strings.Contains(strings.ToLower(j.Position), term)
}
