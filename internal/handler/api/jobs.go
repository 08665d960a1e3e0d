package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"RegimeLab/internal/domain/models"
	svcmetrics "RegimeLab/internal/service/metrics"
	xhttp "RegimeLab/pkg/http"
	xlogger "RegimeLab/pkg/logger"
)

const wsWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func (h *EngineHandler) CreateJob(c echo.Context) error {
	start := time.Now()
	code := ""
	defer func() { svcmetrics.ObserveEndpoint("jobs_create", start, code) }()

	req := &models.CreateJobRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		code = "ERR_VALIDATION"
		return xhttp.BadRequestResponse(c, verr)
	}
	rec, err := h.jobs.Submit(c.Request().Context(), *req)
	if err != nil {
		appErr := mapError(err)
		code = appErr.Code
		if appErr.Status >= http.StatusInternalServerError {
			h.logger.Error("submit job failed", xlogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, appErr)
	}
	return xhttp.AcceptedResponse(c, rec)
}

func (h *EngineHandler) GetJob(c echo.Context) error {
	rec, err := h.jobs.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return xhttp.AppErrorResponse(c, mapError(err))
	}
	return xhttp.SuccessResponse(c, rec)
}

// StreamJob pushes the job record over a websocket every time it changes
// and closes the socket once the job is done or failed.
func (h *EngineHandler) StreamJob(c echo.Context) error {
	id := c.Param("id")
	rec, err := h.jobs.Get(c.Request().Context(), id)
	if err != nil {
		return xhttp.AppErrorResponse(c, mapError(err))
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", xlogger.String("id", id), xlogger.Error(err))
		return nil
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	// the reader only notices the client going away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.wsPoll)
	defer ticker.Stop()

	var last *models.JobRecord
	for {
		if last == nil || changed(*last, rec) {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(rec); err != nil {
				return nil
			}
			r := rec
			last = &r
		}
		if rec.Status.Terminal() {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(rec.Status))
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		next, err := h.jobs.Get(ctx, id)
		if err != nil {
			h.logger.Warn("job stream read failed", xlogger.String("id", id), xlogger.Error(err))
			msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "job unavailable")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
			return nil
		}
		rec = next
	}
}

func changed(a, b models.JobRecord) bool {
	return a.Status != b.Status || a.Progress != b.Progress || !a.UpdatedAt.Equal(b.UpdatedAt)
}
