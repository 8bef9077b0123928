package importer

import (
	"strings"

	"jobdeck/internal/model"

	"golang.org/x/net/html"
)

// 外部职位导入后的默认字段。
const (
	DefaultStatus   = model.StatusWishlist
	DefaultPriority = model.PriorityMedium
	DefaultJobType  = model.JobTypeFullTime
)

// Draft 把一条外部搜索结果转换为待创建的记录草稿。
// 纯转换，无网络与状态：备注首行固定为来源标注，
// 职位描述去除 HTML 标记后附在其后。
func Draft(listing model.Listing) model.Job {
	notes := "Imported from " + listing.Source
	if desc := StripMarkup(listing.Description); desc != "" {
		notes += "\n\n" + desc
	}

	var salary *model.Salary
	if listing.SalaryMin != nil || listing.SalaryMax != nil {
		salary = &model.Salary{Min: listing.SalaryMin, Max: listing.SalaryMax}
	}

	return model.Job{
		Company:  listing.Company,
		Position: listing.Title,
		Location: listing.Location,
		JobURL:   listing.URL,
		Salary:   salary,
		Notes:    notes,
		Status:   DefaultStatus,
		Priority: DefaultPriority,
		JobType:  DefaultJobType,
	}
}

// StripMarkup 去掉文本中的 HTML 标记，只保留可见文字。
// 解析失败时退回原始文本。
func StripMarkup(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}
	if !strings.ContainsRune(trimmed, '<') {
		return collapseSpace(trimmed)
	}

	node, err := html.Parse(strings.NewReader(trimmed))
	if err != nil {
		return collapseSpace(trimmed)
	}

	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)

	return strings.Join(parts, " ")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
