package models

import "time"

// HistoryFilter narrows the admin history listing. Zero values mean "no
// constraint"; State accepts pending, paid or cancelled.
type HistoryFilter struct {
	From  *time.Time
	To    *time.Time
	State PaymentState
}

type SortOrder struct {
	Key        string
	Descending bool
}

type Page struct {
	Number int
	Limit  int
}

func (p Page) Skip() int64 {
	n := p.Number
	if n < 1 {
		n = 1
	}
	return int64((n - 1) * p.Limit)
}

// Pagination is the listing envelope returned with admin history pages.
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}
