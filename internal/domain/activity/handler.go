package activity

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/haccare/simcare/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/activity", h.ListActivity)
}

// ListActivity returns the activity log, newest first. Supports
// filtering by subject (subject_type + subject_id) or by actor.
func (h *Handler) ListActivity(c echo.Context) error {
	p := pagination.FromContext(c)
	ctx := c.Request().Context()

	subjectType := c.QueryParam("subject_type")
	subjectID := c.QueryParam("subject_id")
	actor := c.QueryParam("actor")

	var (
		entries []*Entry
		total   int
		err     error
	)
	switch {
	case subjectType != "" && subjectID != "":
		id, perr := uuid.Parse(subjectID)
		if perr != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid subject_id")
		}
		entries, total, err = h.svc.ListBySubject(ctx, subjectType, id, p.Limit, p.Offset)
	case actor != "":
		entries, total, err = h.svc.ListByActor(ctx, actor, p.Limit, p.Offset)
	default:
		entries, total, err = h.svc.List(ctx, p.Limit, p.Offset)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if entries == nil {
		entries = []*Entry{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, p.Limit, p.Offset))
}
