// internal/web/pagination.go
package web

import (
	"errors"
	"net/http"
	"strconv"
)

// ErrPageOutOfRange is returned when a requested page number does not exist.
// List views surface it as a not-found response rather than clamping to the
// last page.
var ErrPageOutOfRange = errors.New("page out of range")

// PageRequest identifies a 1-indexed page of a given size.
type PageRequest struct {
	Number int
	Size   int
}

// PageInfo describes one page of a paginated collection. Callers use
// IsPaginated to decide whether pager controls are worth rendering.
type PageInfo struct {
	Number      int  `json:"number"`
	Size        int  `json:"size"`
	TotalItems  int  `json:"total_items"`
	TotalPages  int  `json:"total_pages"`
	IsPaginated bool `json:"is_paginated"`
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
}

// Paginate validates a page request against the collection size.
// Page 1 of an empty collection is valid and empty; any page beyond the last
// fails with ErrPageOutOfRange.
func Paginate(req PageRequest, totalItems int) (PageInfo, error) {
	if req.Number < 1 || req.Size < 1 || totalItems < 0 {
		return PageInfo{}, ErrPageOutOfRange
	}

	totalPages := (totalItems + req.Size - 1) / req.Size
	if totalPages == 0 {
		totalPages = 1
	}
	if req.Number > totalPages {
		return PageInfo{}, ErrPageOutOfRange
	}

	return PageInfo{
		Number:      req.Number,
		Size:        req.Size,
		TotalItems:  totalItems,
		TotalPages:  totalPages,
		IsPaginated: totalItems > req.Size,
		HasNext:     req.Number < totalPages,
		HasPrevious: req.Number > 1,
	}, nil
}

// Offset is the number of items preceding this page.
func (p PageInfo) Offset() int {
	return (p.Number - 1) * p.Size
}

// PageParam reads the 1-indexed page query parameter. A missing parameter
// means page 1; a malformed or non-positive one is reported as invalid so the
// caller can respond not-found, per strict pagination.
func PageParam(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("page")
	if raw == "" {
		return 1, true
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 0, false
	}
	return page, true
}

// ItemsOnPage is how many items this page holds.
func (p PageInfo) ItemsOnPage() int {
	remaining := p.TotalItems - p.Offset()
	if remaining > p.Size {
		return p.Size
	}
	if remaining < 0 {
		return 0
	}
	return remaining
}
