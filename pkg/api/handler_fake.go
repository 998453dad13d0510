package api

import (
	"net/http"
	"strconv"

	"github.com/brianvoe/gofakeit/v7"
	echo "github.com/labstack/echo/v5"
)

// Dev-mode payload generators. Mounted only when dev_mode is set; handy for
// smoke-testing the transports without writing request bodies by hand.

const maxFakeBatch = 100

func fakeChatRequest() ChatRequest {
	return ChatRequest{
		UserID: gofakeit.Username(),
		Text:   gofakeit.Question(),
	}
}

// fakeChatHandler handles GET /fake/chat: one random /chat request body.
func (s *Server) fakeChatHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, fakeChatRequest())
}

// fakeChatBatchHandler handles GET /fake/chat/batch?count=N (default 10).
func (s *Server) fakeChatBatchHandler(c *echo.Context) error {
	count := 10
	if raw := c.QueryParam("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxFakeBatch {
			return echo.NewHTTPError(http.StatusBadRequest,
				"count must be an integer between 1 and "+strconv.Itoa(maxFakeBatch))
		}
		count = n
	}

	batch := make([]ChatRequest, count)
	for i := range batch {
		batch[i] = fakeChatRequest()
	}
	return c.JSON(http.StatusOK, batch)
}
