package domain

import "github.com/notifly-go/pkg/database"

// Page is one window of a listing together with its totals.
type Page[T any] struct {
	Items           []T   `json:"items"`
	Page            int   `json:"page"`
	Limit           int   `json:"limit"`
	Total           int64 `json:"total"`
	TotalPages      int   `json:"totalPages"`
	HasNextPage     bool  `json:"hasNextPage"`
	HasPreviousPage bool  `json:"hasPreviousPage"`
}

func NewPage[T any](items []T, p *database.Pagination) *Page[T] {
	if items == nil {
		items = []T{}
	}
	return &Page[T]{
		Items:           items,
		Page:            p.Page,
		Limit:           p.Limit,
		Total:           p.Total,
		TotalPages:      p.Pages,
		HasNextPage:     p.HasNext(),
		HasPreviousPage: p.HasPrevious(),
	}
}

// Authorize checks that the caller is authenticated and, when ownerID is set, is the owner.
func Authorize(actorID, ownerID string) error {
	if actorID == "" {
		return ErrUnauthenticated
	}
	if ownerID != "" && actorID != ownerID {
		return ErrForbidden
	}
	return nil
}
