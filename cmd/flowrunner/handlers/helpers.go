package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": msg})
}

func notFound(c echo.Context, msg string) error {
	return c.JSON(http.StatusNotFound, map[string]interface{}{"error": msg})
}

func internalError(c echo.Context) error {
	return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": "internal error"})
}

// pagination reads limit/offset query params with sane bounds.
func pagination(c echo.Context) (limit, offset int) {
	limit = 50
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}
	if v, err := strconv.Atoi(c.QueryParam("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}

// definitionCacheKey names the cache slot for a stored workflow definition.
func definitionCacheKey(id uuid.UUID) string {
	return "workflow:definition:" + id.String()
}

// submittedBy extracts the caller identity from the X-User-ID header.
func submittedBy(c echo.Context) *string {
	if user := c.Request().Header.Get("X-User-ID"); user != "" {
		return &user
	}
	return nil
}
