package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"barback/internal/auditlog"
	"barback/internal/core"
)

// AdminHandler serves the admin API: catalog writes, cache management and
// the audit trail.
type AdminHandler struct {
	catalog Catalog
	audit   auditlog.Recorder
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(cat Catalog, audit auditlog.Recorder) *AdminHandler {
	return &AdminHandler{catalog: cat, audit: audit}
}

// SaveCollection handles PUT /admin/api/v1/:collection. The body is a JSON
// array of records; the whole collection is written through to the backend
// and the cache.
func (h *AdminHandler) SaveCollection(c echo.Context) error {
	start := time.Now()
	collection := parseCollection(c.Param("collection"))

	entry := auditlog.NewEntry(auditlog.ActionSave)
	entry.Collection = string(collection)

	if !collection.Valid() {
		err := core.NewNotFoundError("unknown collection: " + string(collection))
		h.record(c, entry, start, err)
		return handleError(c, err)
	}

	ctx := c.Request().Context()
	var count int
	var err error

	switch collection {
	case core.CollectionCocktails:
		var records []core.Cocktail
		if err = c.Bind(&records); err == nil {
			count = len(records)
			err = h.catalog.SaveCocktails(ctx, records)
		}
	case core.CollectionIngredients:
		var records []core.Ingredient
		if err = c.Bind(&records); err == nil {
			count = len(records)
			err = h.catalog.SaveIngredients(ctx, records)
		}
	case core.CollectionGlassTypes:
		var records []core.GlassType
		if err = c.Bind(&records); err == nil {
			count = len(records)
			err = h.catalog.SaveGlassTypes(ctx, records)
		}
	case core.CollectionCategories:
		var records []core.Category
		if err = c.Bind(&records); err == nil {
			count = len(records)
			err = h.catalog.SaveCategories(ctx, records)
		}
	}

	entry.ItemCount = count
	if err != nil {
		var svcErr *core.ServiceError
		if !errors.As(err, &svcErr) {
			err = core.NewInvalidRequestError("invalid request body: "+err.Error(), err)
		}
		h.record(c, entry, start, err)
		return handleError(c, err)
	}

	h.record(c, entry, start, nil)
	return c.JSON(http.StatusOK, map[string]any{
		"status":     "saved",
		"collection": collection,
		"count":      count,
	})
}

// RefreshCache handles POST /admin/api/v1/cache/refresh. With a collection
// query parameter only that collection is refreshed; otherwise all of them.
func (h *AdminHandler) RefreshCache(c echo.Context) error {
	start := time.Now()
	ctx := c.Request().Context()

	entry := auditlog.NewEntry(auditlog.ActionRefresh)

	var err error
	if name := c.QueryParam("collection"); name != "" {
		collection := parseCollection(name)
		entry.Collection = string(collection)
		err = h.catalog.Refresh(ctx, collection)
	} else {
		err = h.catalog.ForceRefreshAll(ctx)
	}

	if err != nil {
		var svcErr *core.ServiceError
		if !errors.As(err, &svcErr) {
			err = core.NewRemoteUnavailableError("refresh failed: "+err.Error(), err)
		}
		h.record(c, entry, start, err)
		return handleError(c, err)
	}

	h.record(c, entry, start, nil)
	return c.JSON(http.StatusOK, map[string]string{"status": "refreshed"})
}

// ClearCache handles DELETE /admin/api/v1/cache.
func (h *AdminHandler) ClearCache(c echo.Context) error {
	start := time.Now()
	entry := auditlog.NewEntry(auditlog.ActionClearCache)

	if err := h.catalog.ClearCache(c.Request().Context()); err != nil {
		h.record(c, entry, start, err)
		return handleError(c, err)
	}

	h.record(c, entry, start, nil)
	return c.JSON(http.StatusOK, map[string]string{"status": "cleared"})
}

// CacheStats handles GET /admin/api/v1/cache/stats.
func (h *AdminHandler) CacheStats(c echo.Context) error {
	stats := h.catalog.Stats(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]any{"collections": stats})
}

// ListAudit handles GET /admin/api/v1/audit.
func (h *AdminHandler) ListAudit(c echo.Context) error {
	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return handleError(c, core.NewInvalidRequestError("invalid limit: "+raw, err))
		}
		if parsed > 1000 {
			parsed = 1000
		}
		limit = parsed
	}

	entries, err := h.audit.List(c.Request().Context(), limit)
	if err != nil {
		return handleError(c, core.NewPersistenceUnavailableError("failed to read audit log", err))
	}

	return c.JSON(http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// parseCollection maps URL spellings ("glass-types") onto collection
// identifiers ("glass_types").
func parseCollection(name string) core.Collection {
	return core.Collection(strings.ReplaceAll(name, "-", "_"))
}

// record writes the audit entry for an admin action.
func (h *AdminHandler) record(c echo.Context, entry *auditlog.Entry, start time.Time, err error) {
	entry.Actor = "admin"
	entry.DurationNS = time.Since(start).Nanoseconds()
	entry.ClientIP = c.RealIP()
	entry.RequestID = c.Response().Header().Get(echo.HeaderXRequestID)

	entry.StatusCode = http.StatusOK
	if err != nil {
		entry.Error = err.Error()
		entry.StatusCode = http.StatusInternalServerError
		var svcErr *core.ServiceError
		if errors.As(err, &svcErr) {
			entry.StatusCode = svcErr.HTTPStatusCode()
		}
	}

	h.audit.Record(entry)
}
