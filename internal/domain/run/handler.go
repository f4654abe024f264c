package run

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/haccare/simcare/internal/platform/auth"
	"github.com/haccare/simcare/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	role := auth.RequireRole("admin", "instructor")

	api.GET("/runs", h.ListRuns)
	api.GET("/runs/:id", h.GetRun)
	api.GET("/runs/:id/history", h.GetHistory)

	write := api.Group("", role)
	write.POST("/templates/:id/launch", h.LaunchRun)
	write.POST("/runs/:id/reset", h.ResetRun)
	write.POST("/runs/:id/complete", h.CompleteRun)
	write.POST("/runs/:id/pause", h.PauseRun)
	write.POST("/runs/:id/resume", h.ResumeRun)
}

func (h *Handler) LaunchRun(c echo.Context) error {
	templateID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid template id")
	}
	var in LaunchInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor := auth.UserIDFromContext(c.Request().Context())

	r, result, err := h.svc.Launch(c.Request().Context(), templateID, actor, in)
	if err != nil {
		body := map[string]any{"error": err.Error()}
		if result != nil {
			body["restore"] = result
		}
		return c.JSON(http.StatusUnprocessableEntity, body)
	}
	return c.JSON(http.StatusCreated, map[string]any{"run": r, "restore": result})
}

func (h *Handler) GetRun(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	r, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) GetHistory(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rec, err := h.svc.History(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "no history for run")
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListRuns(c echo.Context) error {
	pg := pagination.FromContext(c)

	var templateID uuid.UUID
	if raw := c.QueryParam("template_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid template_id")
		}
		templateID = id
	}

	items, total, err := h.svc.List(c.Request().Context(), templateID, c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Run{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ResetRun(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor := auth.UserIDFromContext(c.Request().Context())
	result, err := h.svc.Reset(c.Request().Context(), id, actor)
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) CompleteRun(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor := auth.UserIDFromContext(c.Request().Context())
	r, err := h.svc.Complete(c.Request().Context(), id, actor)
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) PauseRun(c echo.Context) error {
	return h.transition(c, h.svc.Pause)
}

func (h *Handler) ResumeRun(c echo.Context) error {
	return h.transition(c, h.svc.Resume)
}

func (h *Handler) transition(c echo.Context, fn func(context.Context, uuid.UUID) (*Run, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	r, err := fn(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, r)
}
