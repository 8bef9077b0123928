package model

import "time"

// Listing 表示外部搜索得到的职位，仅作为瞬态搜索结果存在，
// 不会被本地持久化；导入后转换为 Job 草稿。
type Listing struct {
	Title       string     `json:"title"`
	Company     string     `json:"company"`
	Location    string     `json:"location,omitempty"`
	SalaryMin   *float64   `json:"salary_min,omitempty"`
	SalaryMax   *float64   `json:"salary_max,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Source      string     `json:"source"`
	ExternalID  string     `json:"externalId"`
	URL         string     `json:"url"`
	Description string     `json:"description,omitempty"`
	Created     *time.Time `json:"created,omitempty"`
}
