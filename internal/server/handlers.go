// Package server provides the HTTP layer: public catalog reads, the admin
// API and the middleware stack.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"barback/internal/cachestore"
	"barback/internal/catalog"
	"barback/internal/core"
)

// Catalog is the surface of the catalog manager the HTTP layer depends on.
// *catalog.Manager satisfies it.
type Catalog interface {
	GetCocktails(ctx context.Context) catalog.Result[core.Cocktail]
	GetIngredients(ctx context.Context) catalog.Result[core.Ingredient]
	GetGlassTypes(ctx context.Context) catalog.Result[core.GlassType]
	GetCategories(ctx context.Context) catalog.Result[core.Category]

	SaveCocktails(ctx context.Context, records []core.Cocktail) error
	SaveIngredients(ctx context.Context, records []core.Ingredient) error
	SaveGlassTypes(ctx context.Context, records []core.GlassType) error
	SaveCategories(ctx context.Context, records []core.Category) error

	Refresh(ctx context.Context, collection core.Collection) error
	ForceRefreshAll(ctx context.Context) error
	ClearCache(ctx context.Context) error
	Stats(ctx context.Context) []cachestore.Stat
}

// Handler serves the public read API.
type Handler struct {
	catalog Catalog
}

// NewHandler creates a handler over the given catalog.
func NewHandler(cat Catalog) *Handler {
	return &Handler{catalog: cat}
}

// collectionResponse is the envelope for public collection reads.
type collectionResponse struct {
	Data        any           `json:"data"`
	State       catalog.State `json:"state"`
	Count       int           `json:"count"`
	RefreshedAt *time.Time    `json:"refreshed_at,omitempty"`
}

func respond[T any](c echo.Context, result catalog.Result[T]) error {
	resp := collectionResponse{
		Data:  result.Records,
		State: result.State,
		Count: len(result.Records),
	}
	if !result.RefreshedAt.IsZero() {
		t := result.RefreshedAt
		resp.RefreshedAt = &t
	}
	return c.JSON(http.StatusOK, resp)
}

// Health handles GET /health.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// GetCocktails handles GET /api/v1/cocktails.
func (h *Handler) GetCocktails(c echo.Context) error {
	return respond(c, h.catalog.GetCocktails(c.Request().Context()))
}

// GetIngredients handles GET /api/v1/ingredients.
func (h *Handler) GetIngredients(c echo.Context) error {
	return respond(c, h.catalog.GetIngredients(c.Request().Context()))
}

// GetGlassTypes handles GET /api/v1/glass-types.
func (h *Handler) GetGlassTypes(c echo.Context) error {
	return respond(c, h.catalog.GetGlassTypes(c.Request().Context()))
}

// GetCategories handles GET /api/v1/categories.
func (h *Handler) GetCategories(c echo.Context) error {
	return respond(c, h.catalog.GetCategories(c.Request().Context()))
}

// handleError converts service errors to HTTP responses.
func handleError(c echo.Context, err error) error {
	var svcErr *core.ServiceError
	if errors.As(err, &svcErr) {
		return c.JSON(svcErr.HTTPStatusCode(), svcErr.ToJSON())
	}

	return c.JSON(http.StatusInternalServerError, map[string]any{
		"error": map[string]any{
			"type":    "internal_error",
			"message": "an unexpected error occurred",
		},
	})
}
