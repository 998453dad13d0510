package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"
)

// historyHandler handles GET /history/:user_id (dev mode only): the most
// recent turns from the SQL log, newest first. The reasoning path never
// reads this; it is an inspection aid.
func (s *Server) historyHandler(c *echo.Context) error {
	if s.history == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "history store is not available")
	}

	userID := c.Param("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}

	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be an integer between 1 and 500")
		}
		limit = n
	}

	turns, err := s.history.RecentTurns(c.Request().Context(), userID, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read history")
	}
	return c.JSON(http.StatusOK, turns)
}
