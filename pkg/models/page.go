package models

// PageInfo is the shared pagination envelope. Pages is ceil(total/limit),
// floored at 1 so an empty result still reports one page.
type PageInfo struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

func NewPageInfo(total, page, limit int) PageInfo {
	pages := 1
	if total > 0 {
		pages = (total + limit - 1) / limit
	}
	return PageInfo{Total: total, Page: page, Limit: limit, Pages: pages}
}

type ConversationPage struct {
	Items []ChatSummary `json:"items"`
	PageInfo
}

type MessagePage struct {
	Items []Message `json:"items"`
	PageInfo
}
