package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"RegimeLab/internal/domain/models"
	xhttp "RegimeLab/pkg/http"
	xlogger "RegimeLab/pkg/logger"
	"RegimeLab/pkg/util"
)

// Runs lists the most recent stored run summaries, optionally for one symbol.
func (h *EngineHandler) Runs(c echo.Context) error {
	limit := util.ClampInt(util.ParseIntDefault(c.QueryParam("limit"), 20), 1, 200)
	if h.runs == nil {
		return xhttp.SuccessResponse(c, []models.RunSummary{})
	}
	runs, err := h.runs.RecentRuns(c.Request().Context(), c.QueryParam("symbol"), limit)
	if err != nil {
		h.logger.Error("list runs failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapError(err))
	}
	if runs == nil {
		runs = []models.RunSummary{}
	}
	return xhttp.SuccessResponse(c, runs)
}

// Health reports every registered dependency check. Any failure turns the
// response into a 503.
func (h *EngineHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	out := map[string]string{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			out[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		out[name] = "ok"
	}
	return xhttp.DataResponse(c, status, map[string]interface{}{
		"status": http.StatusText(status),
		"checks": out,
		"time":   time.Now().UTC(),
	})
}
