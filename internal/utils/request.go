package utils

import (
	"github.com/gin-gonic/gin"
)

// PaginationQuery is the page/limit pair a listing endpoint accepts as
// query parameters.
type PaginationQuery struct {
	Page  int `form:"page"`
	Limit int `form:"limit"`
}

// GetPagination reads page/limit off the query string, defaulting to page 1
// of 10 and capping limit at 100 so a client can't force an unbounded scan
// of an in-memory photo listing. A malformed or missing query still binds
// cleanly to the zero value, so the defaulting below is what actually takes
// effect.
func GetPagination(c *gin.Context) (page, limit int) {
	var q PaginationQuery
	_ = c.ShouldBindQuery(&q)

	page, limit = q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	return page, limit
}

// GetOffset turns a 1-indexed page into a slice/row offset.
func GetOffset(page, limit int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit
}
