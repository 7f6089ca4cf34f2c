package service

import (
	"github.com/stacklok/plugin-mirror/internal/feed"
)

const (
	// DefaultPerPage is the listing page size when none is requested
	DefaultPerPage = 24

	// MaxPerPage is the largest accepted listing page size
	MaxPerPage = 250
)

// Option is a function that sets an option for a service operation
type Option[T QueryOptions] func(*T) error

// QueryOptions selects a listing page
type QueryOptions struct {
	// Page is 1-based
	Page    int
	PerPage int

	// Browse "updated" orders newest-modified first
	Browse string
}

func defaultQueryOptions() QueryOptions {
	return QueryOptions{Page: 1, PerPage: DefaultPerPage}
}

// request returns the remote listing request with the same shape
func (o QueryOptions) request() feed.PageRequest {
	return feed.PageRequest{Page: o.Page, PerPage: o.PerPage, Browse: o.Browse}
}

// WithPage sets the 1-based page number
func WithPage(page int) Option[QueryOptions] {
	return func(o *QueryOptions) error {
		if page < 1 {
			return &ValidationError{Field: "page", Message: "must be at least 1"}
		}
		o.Page = page
		return nil
	}
}

// WithPerPage sets the page size. Sizes above MaxPerPage are clamped.
func WithPerPage(perPage int) Option[QueryOptions] {
	return func(o *QueryOptions) error {
		if perPage < 1 {
			return &ValidationError{Field: "per_page", Message: "must be at least 1"}
		}
		o.PerPage = min(perPage, MaxPerPage)
		return nil
	}
}

// WithBrowse sets the listing order. Only "updated" sorts; any other
// mode lists in storage order.
func WithBrowse(browse string) Option[QueryOptions] {
	return func(o *QueryOptions) error {
		o.Browse = browse
		return nil
	}
}
