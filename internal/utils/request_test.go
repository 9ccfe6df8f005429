package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func ginContextWithQuery(t *testing.T, rawQuery string) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	req := httptest.NewRequest(http.MethodGet, "/?"+rawQuery, nil)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = req
	return c
}

func TestGetPaginationDefaults(t *testing.T) {
	c := ginContextWithQuery(t, "")
	page, limit := GetPagination(c)
	if page != 1 || limit != 10 {
		t.Fatalf("expected page=1 limit=10, got page=%d limit=%d", page, limit)
	}
}

func TestGetPaginationCapsLimit(t *testing.T) {
	c := ginContextWithQuery(t, "page=2&limit=500")
	page, limit := GetPagination(c)
	if page != 2 {
		t.Fatalf("expected page=2, got %d", page)
	}
	if limit != 100 {
		t.Fatalf("expected limit capped at 100, got %d", limit)
	}
}

func TestGetPaginationRejectsNonPositiveValues(t *testing.T) {
	c := ginContextWithQuery(t, "page=0&limit=-5")
	page, limit := GetPagination(c)
	if page != 1 || limit != 10 {
		t.Fatalf("expected non-positive values to fall back to defaults, got page=%d limit=%d", page, limit)
	}
}

func TestGetOffset(t *testing.T) {
	cases := []struct {
		page, limit, want int
	}{
		{1, 10, 0},
		{2, 10, 10},
		{3, 25, 50},
		{0, 10, 0},
	}
	for _, tc := range cases {
		if got := GetOffset(tc.page, tc.limit); got != tc.want {
			t.Fatalf("GetOffset(%d, %d) = %d, want %d", tc.page, tc.limit, got, tc.want)
		}
	}
}
