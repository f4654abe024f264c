package registry

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/haccare/simcare/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes exposes the registry read-only to every authenticated
// collaborator; mutations are restricted to admins.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/registry", h.ListEntries)

	admin := api.Group("", auth.RequireRole("admin"))
	admin.PUT("/registry/:name", h.UpdateEntry)
	admin.POST("/registry/:name/enable", h.EnableEntry)
	admin.POST("/registry/:name/disable", h.DisableEntry)
}

func (h *Handler) ListEntries(c echo.Context) error {
	entries, err := h.svc.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) UpdateEntry(c echo.Context) error {
	var e Entry
	if err := c.Bind(&e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid registry entry")
	}
	e.Name = c.Param("name")
	if err := h.svc.Update(c.Request().Context(), e); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) EnableEntry(c echo.Context) error {
	return h.setEnabled(c, true)
}

func (h *Handler) DisableEntry(c echo.Context) error {
	return h.setEnabled(c, false)
}

func (h *Handler) setEnabled(c echo.Context, enabled bool) error {
	name := c.Param("name")
	if err := h.svc.SetEnabled(c.Request().Context(), name, enabled); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"name": name, "enabled": enabled})
}
