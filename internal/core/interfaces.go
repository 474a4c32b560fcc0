package core

import "context"

// RemoteGateway is the only component permitted to talk to the authoritative
// backend. Fetches return the full collection; saves replace it. Callers must
// not assume success: every method can fail with a ServiceError of type
// remote_unavailable or authentication_error.
//
// Write methods are admin-only; the privilege check happens before the
// gateway is invoked and is not re-validated here.
type RemoteGateway interface {
	FetchCocktails(ctx context.Context) ([]Cocktail, error)
	FetchIngredients(ctx context.Context) ([]Ingredient, error)
	FetchGlassTypes(ctx context.Context) ([]GlassType, error)
	FetchCategories(ctx context.Context) ([]Category, error)

	SaveCocktails(ctx context.Context, records []Cocktail) error
	SaveIngredients(ctx context.Context, records []Ingredient) error
	SaveGlassTypes(ctx context.Context, records []GlassType) error
	SaveCategories(ctx context.Context, records []Category) error
}
