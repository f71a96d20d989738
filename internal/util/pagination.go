package util

import "strconv"

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

func ParseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}

// Calculate turns a 1-based page and a page size into offset and limit. Sizes outside
// [1, MaxPageSize] fall back to def.
func Calculate(page, size, def int) (offset, limit int) {
	if def < 1 {
		def = DefaultPageSize
	}
	if page < 1 {
		page = 1
	}
	if size < 1 || size > MaxPageSize {
		size = def
	}
	return (page - 1) * size, size
}

func TotalPages(total int64, limit int) int64 {
	if limit < 1 {
		return 0
	}
	return (total + int64(limit) - 1) / int64(limit)
}
