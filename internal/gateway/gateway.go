package gateway

import (
	"context"
	"log/slog"
	"net/http"

	"barback/internal/core"
)

// Client implements core.RemoteGateway against the hosted backend's REST
// layer. Collections map to tables exposed under /rest/v1.
type Client struct {
	rest *restClient
}

var _ core.RemoteGateway = (*Client)(nil)

// New creates a gateway client for the backend at cfg.BaseURL.
func New(cfg ClientConfig) *Client {
	return &Client{rest: newRESTClient(cfg, nil)}
}

// NewWithHTTPClient creates a gateway client with a custom HTTP client,
// used by tests to point at an httptest server.
func NewWithHTTPClient(cfg ClientConfig, httpClient *http.Client) *Client {
	return &Client{rest: newRESTClient(cfg, httpClient)}
}

func collectionEndpoint(collection core.Collection) string {
	return "/rest/v1/" + string(collection)
}

// fetchCollection retrieves the full contents of one backend table.
func fetchCollection[T any](ctx context.Context, c *Client, collection core.Collection) ([]T, error) {
	var records []T
	err := c.rest.do(ctx, request{
		Method:   http.MethodGet,
		Endpoint: collectionEndpoint(collection) + "?select=*",
	}, &records)
	if err != nil {
		remoteFetches.WithLabelValues(string(collection), "error").Inc()
		return nil, err
	}

	remoteFetches.WithLabelValues(string(collection), "success").Inc()
	slog.Debug("fetched collection from backend",
		"collection", collection,
		"records", len(records),
	)
	return records, nil
}

// saveCollection upserts the full record set for one backend table. The
// backend resolves duplicates by primary key, so a save is a wholesale
// replace from the application's point of view.
func saveCollection[T any](ctx context.Context, c *Client, collection core.Collection, records []T) error {
	err := c.rest.do(ctx, request{
		Method:   http.MethodPost,
		Endpoint: collectionEndpoint(collection),
		Body:     records,
		Headers: map[string]string{
			"Prefer": "resolution=merge-duplicates",
		},
	}, nil)
	if err != nil {
		remoteSaves.WithLabelValues(string(collection), "error").Inc()
		return err
	}

	remoteSaves.WithLabelValues(string(collection), "success").Inc()
	return nil
}

// FetchCocktails retrieves all cocktail recipes.
func (c *Client) FetchCocktails(ctx context.Context) ([]core.Cocktail, error) {
	return fetchCollection[core.Cocktail](ctx, c, core.CollectionCocktails)
}

// FetchIngredients retrieves all ingredients.
func (c *Client) FetchIngredients(ctx context.Context) ([]core.Ingredient, error) {
	return fetchCollection[core.Ingredient](ctx, c, core.CollectionIngredients)
}

// FetchGlassTypes retrieves all glass types.
func (c *Client) FetchGlassTypes(ctx context.Context) ([]core.GlassType, error) {
	return fetchCollection[core.GlassType](ctx, c, core.CollectionGlassTypes)
}

// FetchCategories retrieves all categories.
func (c *Client) FetchCategories(ctx context.Context) ([]core.Category, error) {
	return fetchCollection[core.Category](ctx, c, core.CollectionCategories)
}

// SaveCocktails upserts the cocktail collection.
func (c *Client) SaveCocktails(ctx context.Context, records []core.Cocktail) error {
	return saveCollection(ctx, c, core.CollectionCocktails, records)
}

// SaveIngredients upserts the ingredient collection.
func (c *Client) SaveIngredients(ctx context.Context, records []core.Ingredient) error {
	return saveCollection(ctx, c, core.CollectionIngredients, records)
}

// SaveGlassTypes upserts the glass type collection.
func (c *Client) SaveGlassTypes(ctx context.Context, records []core.GlassType) error {
	return saveCollection(ctx, c, core.CollectionGlassTypes, records)
}

// SaveCategories upserts the category collection.
func (c *Client) SaveCategories(ctx context.Context, records []core.Category) error {
	return saveCollection(ctx, c, core.CollectionCategories, records)
}
