package handlers

import (
	"net/http"
	"strconv"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/labstack/echo/v4"

	"medtrack/internal/apperr"
	"medtrack/internal/service/search"
	"medtrack/internal/util"
)

type SearchHandler struct {
	ES    *elasticsearch.Client
	Index string
}

func (h *SearchHandler) Search(c echo.Context) error {
	q := c.QueryParam("q")
	if q == "" {
		return apperr.BadRequest("Search query is required")
	}
	// the server runs without a search backend when ES_URL is unset
	if h.ES == nil {
		return apperr.Unavailable("Search is currently unavailable")
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("size"))
	from, size := util.Calculate(page, size)

	total, meds, err := search.Search(c.Request().Context(), h.ES, h.Index, q, from, size)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":     true,
		"total":       total,
		"medications": meds,
	})
}
