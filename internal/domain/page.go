package domain

// PageRequest carries pagination and sorting parameters. They are passed
// through to the backing store untouched; the core imposes no sort grammar
// beyond "column name, optionally suffixed with ,desc".
type PageRequest struct {
	Page int    `json:"page"`
	Size int    `json:"size"`
	Sort string `json:"sort,omitempty"`
}

// Offset returns the row offset for the request.
func (r PageRequest) Offset() int {
	if r.Page < 0 || r.Size <= 0 {
		return 0
	}
	return r.Page * r.Size
}

// Limit returns the row limit for the request, falling back to def when
// the request carries no usable size.
func (r PageRequest) Limit(def int) int {
	if r.Size > 0 {
		return r.Size
	}
	return def
}

// Page is one slice of a larger result set.
type Page[T any] struct {
	Content       []T   `json:"content"`
	Number        int   `json:"number"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"total_elements"`
}

// NewPage builds a page from a content slice and the originating request.
func NewPage[T any](content []T, req PageRequest, total int64) Page[T] {
	if content == nil {
		content = []T{}
	}
	return Page[T]{
		Content:       content,
		Number:        req.Page,
		Size:          len(content),
		TotalElements: total,
	}
}
