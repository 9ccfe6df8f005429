package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the envelope every handler in this service answers with,
// success or failure, so a client only ever has one shape to parse.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   interface{} `json:"error,omitempty"`
	Meta    *Pagination `json:"meta,omitempty"`
}

// Pagination carries the page window alongside a paginated payload.
type Pagination struct {
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
	TotalPages  int `json:"total_pages"`
}

// SendSuccess answers 200 with a data payload.
func SendSuccess(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// SendCreated answers 201, for requests that registered a new resource
// rather than just acting on or returning an existing one.
func SendCreated(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// SendPaginated answers 200 with a page of data plus the window it came from.
func SendPaginated(c *gin.Context, message string, data interface{}, page, limit, total int) {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: message,
		Data:    data,
		Meta: &Pagination{
			CurrentPage: page,
			PerPage:     limit,
			Total:       total,
			TotalPages:  totalPages,
		},
	})
}

// SendError aborts the request with code, recording err on the gin context
// (if non-nil) so it reaches whatever recovery/logging middleware runs after.
func SendError(c *gin.Context, code int, message string, err error) {
	var errDetails interface{}
	if err != nil {
		errDetails = err.Error()
		c.Error(err)
	}

	c.AbortWithStatusJSON(code, Response{
		Success: false,
		Message: message,
		Error:   errDetails,
	})
}

// SendValidationError answers 400 for a malformed or failed-binding request
// body — the common case every ShouldBindJSON call site hits on bad input.
func SendValidationError(c *gin.Context, err error) {
	SendError(c, http.StatusBadRequest, "validation failed", err)
}

// SendInternalError answers 500 for a failure with no more specific
// catalogerr kind attached to it.
func SendInternalError(c *gin.Context, err error) {
	SendError(c, http.StatusInternalServerError, "internal server error", err)
}
