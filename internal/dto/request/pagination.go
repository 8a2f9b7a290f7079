package request

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

// PaginatedRequest is the page window for history listings (passenger
// bookings, company payouts). Out of range values are clamped rather than
// rejected, since they arrive as raw query parameters.
type PaginatedRequest struct {
	Page    int `json:"page" validate:"min=1"`
	PerPage int `json:"per_page" validate:"min=1,max=100"`
}

// PageNumber is the 1-based page actually served.
func (p PaginatedRequest) PageNumber() int {
	if p.Page < 1 {
		return 1
	}
	return p.Page
}

func (p PaginatedRequest) Limit() int {
	switch {
	case p.PerPage < 1:
		return DefaultPerPage
	case p.PerPage > MaxPerPage:
		return MaxPerPage
	}
	return p.PerPage
}

// Offset is derived from the clamped limit so pages never overlap.
func (p PaginatedRequest) Offset() int {
	return (p.PageNumber() - 1) * p.Limit()
}
