package model

// PerPage is the fixed size of every task listing page.
const PerPage = 15

// Page is one bounded slice of an ordered task listing.
type Page struct {
	Items       []Task `json:"data"`
	Total       int64  `json:"total"`
	CurrentPage int    `json:"current_page"`
	LastPage    int    `json:"last_page"`
	PerPage     int    `json:"per_page"`
	From        int    `json:"from"`
	To          int    `json:"to"`
}

// NormalizePage clamps a requested page number to the first page.
func NormalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

// NewPage fills the pagination metadata for items taken at the given page.
func NewPage(items []Task, total int64, page int) *Page {
	page = NormalizePage(page)
	if items == nil {
		items = []Task{}
	}
	lastPage := int((total + PerPage - 1) / PerPage)
	if lastPage < 1 {
		lastPage = 1
	}
	p := &Page{
		Items:       items,
		Total:       total,
		CurrentPage: page,
		LastPage:    lastPage,
		PerPage:     PerPage,
	}
	if len(items) > 0 {
		p.From = (page-1)*PerPage + 1
		p.To = p.From + len(items) - 1
	}
	return p
}

// Offset returns the number of rows preceding the page.
func Offset(page int) int {
	return (NormalizePage(page) - 1) * PerPage
}
