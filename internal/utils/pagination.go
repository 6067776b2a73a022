// Package utils holds small helpers shared by the transport and service
// layers.
package utils

import (
	"strconv"
	"strings"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageRequest is a 1-based page window.
type PageRequest struct {
	Page int
	Size int
}

// ParsePage reads raw page and size query values. Missing or malformed
// values fall back to the defaults; out-of-range values are clamped.
func ParsePage(page, size string) PageRequest {
	p := PageRequest{
		Page: AtoiDefault(page, DefaultPage),
		Size: AtoiDefault(size, DefaultPageSize),
	}
	if p.Page < 1 {
		p.Page = 1
	}
	switch {
	case p.Size < 1:
		p.Size = 1
	case p.Size > MaxPageSize:
		p.Size = MaxPageSize
	}
	return p
}

// Offset is the number of rows before the first row of the page.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.Size
}

// TotalPages returns ceil(total/size), or 0 when size is not positive.
func TotalPages(total int64, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}

// AtoiDefault parses s as a base-10 int after trimming spaces, returning def
// when s is blank or not a number.
func AtoiDefault(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
