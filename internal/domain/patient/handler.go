package patient

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/hengadev/errsx"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carechart/carechart/pkg/pagination"
)

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/patients")
	g.GET("", h.ListPatients)
	g.POST("", h.CreatePatient)
	g.GET("/stats", h.GetStats)
	g.GET("/optimize", h.AnalyzeQuery)
	g.GET("/:id", h.GetPatient)
	g.PUT("/:id", h.UpdatePatient)
	g.DELETE("/:id", h.DeletePatient)
	g.GET("/:id/audit", h.GetPatientAudit)
}

type errorBody struct {
	Error  string    `json:"error"`
	Errors errsx.Map `json:"errors,omitempty"`
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	field := c.QueryParam("field")
	if field == "" {
		field = string(FieldName)
	}

	result, err := h.svc.Search(c.Request().Context(), SearchParams{
		Search: c.QueryParam("search"),
		Field:  field,
		Page:   pg.Page,
		Limit:  pg.Limit,
	})
	if err != nil {
		return h.fail(c, err, "Failed to fetch patients")
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "Invalid request body"})
	}
	id, err := h.svc.Create(c.Request().Context(), &p)
	if err != nil {
		return h.fail(c, err, "Failed to create patient")
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"message":   "Patient created successfully",
		"patientId": id,
	})
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return invalidID(c)
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err, "Failed to fetch patient")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return invalidID(c)
	}
	var patch Patch
	if err := c.Bind(&patch); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "Invalid request body"})
	}
	modified, err := h.svc.Update(c.Request().Context(), id, &patch)
	if err != nil {
		return h.fail(c, err, "Failed to update patient")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"message":       "Patient updated successfully",
		"modifiedCount": modified,
	})
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return invalidID(c)
	}
	deleted, err := h.svc.Delete(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err, "Failed to delete patient")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"message":      "Patient deleted successfully",
		"deletedCount": deleted,
	})
}

func (h *Handler) GetPatientAudit(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return invalidID(c)
	}
	entries, err := h.svc.History(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err, "Failed to fetch audit trail")
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) GetStats(c echo.Context) error {
	st, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return h.fail(c, err, "Failed to fetch statistics")
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) AnalyzeQuery(c echo.Context) error {
	analysis, err := h.svc.AnalyzeQuery(c.Request().Context(), c.QueryParam("query"))
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return c.JSON(http.StatusBadRequest, errorBody{Error: verr.Fields.Get("query")})
		}
		return h.fail(c, err, "Failed to analyze query performance")
	}
	return c.JSON(http.StatusOK, analysis)
}

func parseID(c echo.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	return id, err == nil
}

func invalidID(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, errorBody{Error: "Invalid patient ID"})
}

// fail maps domain errors to responses. Deadline errors are returned for the
// timeout middleware; anything else unexpected is logged and answered with
// the generic fallback message.
func (h *Handler) fail(c echo.Context, err error, fallback string) error {
	var verr *ValidationError
	var conflict *ConflictError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, errorBody{Error: "Validation failed", Errors: verr.Fields})
	case errors.As(err, &conflict):
		return c.JSON(http.StatusBadRequest, errorBody{Error: conflict.Message})
	case errors.Is(err, ErrNotFound):
		return c.JSON(http.StatusNotFound, errorBody{Error: "Patient not found"})
	}

	rid, _ := c.Get("request_id").(string)
	if errors.Is(err, context.DeadlineExceeded) {
		h.logger.Warn().Err(err).Str("request_id", rid).Msg("request deadline exceeded")
		return err
	}
	h.logger.Error().Err(err).
		Str("request_id", rid).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg(fallback)
	return c.JSON(http.StatusInternalServerError, errorBody{Error: fallback})
}
