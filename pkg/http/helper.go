package http

import (
	"net/http"
	"strconv"

	apperrors "itinera/pkg/errors"
)

const (
	DefaultPaginationLimit = 20
	MaxPaginationLimit     = 100
)

func ExtractLimitOffset(r *http.Request) (int, int64, error) {
	query := r.URL.Query()

	limit := 0
	if s := query.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid limit parameter: " + s)
		}
		limit = v
	}

	var offset int64
	if s := query.Get("offset"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid offset parameter: " + s)
		}
		offset = v
	}

	return NormalizePaginationLimit(limit), max(0, offset), nil
}

func NormalizePaginationLimit(limit int) int {
	if limit <= 0 {
		return DefaultPaginationLimit
	}
	return min(limit, MaxPaginationLimit)
}
