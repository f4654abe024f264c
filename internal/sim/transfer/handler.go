package transfer

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/haccare/simcare/internal/domain/activity"
	"github.com/haccare/simcare/internal/platform/auth"
)

type Handler struct {
	svc *Service
	act *activity.Service
}

func NewHandler(svc *Service, act *activity.Service) *Handler {
	return &Handler{svc: svc, act: act}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	role := auth.RequireRole("admin", "instructor")
	grp := api.Group("", role)
	grp.GET("/templates/:id/export", h.ExportTemplate)
	grp.POST("/templates/import", h.ImportTemplate)
	grp.POST("/templates/validate", h.ValidatePackage)
}

// ExportTemplate streams the package as a JSON attachment.
func (h *Handler) ExportTemplate(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	actor := auth.UserIDFromContext(ctx)

	pkg, err := h.svc.Export(ctx, id, actor)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	h.act.Record(ctx, actor, activity.ActionBackupDownloaded, "template", id,
		map[string]any{"snapshot_version": pkg.Template.SnapshotVersion})

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="%s-v%d.json"`, pkg.Template.Name, pkg.Template.SnapshotVersion))
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c.Response().WriteHeader(http.StatusOK)
	return WritePackage(c.Response(), pkg)
}

func (h *Handler) ImportTemplate(c echo.Context) error {
	pkg, err := ReadPackage(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	opts := ImportOptions{PreserveStableIDs: c.QueryParam("preserve_ids") == "true"}
	actor := auth.UserIDFromContext(c.Request().Context())

	t, result, err := h.svc.Import(c.Request().Context(), pkg, actor, opts)
	if err != nil {
		body := map[string]any{"error": err.Error()}
		if result != nil {
			body["restore"] = result
		}
		return c.JSON(http.StatusUnprocessableEntity, body)
	}
	return c.JSON(http.StatusCreated, map[string]any{"template": t, "restore": result})
}

// ValidatePackage dry-runs a package against the registry without importing.
func (h *Handler) ValidatePackage(c echo.Context) error {
	pkg, err := ReadPackage(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	entries, err := h.svc.reg.ListEnabledAll(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, Validate(pkg, entries))
}
