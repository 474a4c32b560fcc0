// Package core provides the shared entity types, error taxonomy and
// interfaces for the barback service.
package core

// Collection identifies one of the cached entity sets. Collections are the
// unit of cache granularity: snapshots are fetched, stored and replaced
// whole, never per-entity.
type Collection string

const (
	CollectionCocktails   Collection = "cocktails"
	CollectionIngredients Collection = "ingredients"
	CollectionGlassTypes  Collection = "glass_types"
	CollectionCategories  Collection = "categories"
)

// Collections returns all collections in a fixed order.
func Collections() []Collection {
	return []Collection{
		CollectionCocktails,
		CollectionIngredients,
		CollectionGlassTypes,
		CollectionCategories,
	}
}

// Valid reports whether c names a known collection.
func (c Collection) Valid() bool {
	switch c {
	case CollectionCocktails, CollectionIngredients, CollectionGlassTypes, CollectionCategories:
		return true
	}
	return false
}

// Difficulty is the preparation difficulty of a cocktail.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is a known difficulty value.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// CocktailIngredient is one line of a cocktail's ingredient list, referencing
// an Ingredient by ID.
type CocktailIngredient struct {
	IngredientID string `json:"ingredient_id"`
	Amount       string `json:"amount"`
	Optional     bool   `json:"optional,omitempty"`
	Garnish      bool   `json:"garnish,omitempty"`
}

// Cocktail is a single recipe as served to UI consumers.
type Cocktail struct {
	ID              string               `json:"id"`
	Name            string               `json:"name"`
	Description     string               `json:"description,omitempty"`
	Instructions    []string             `json:"instructions"`
	Ingredients     []CocktailIngredient `json:"ingredients"`
	Category        string               `json:"category,omitempty"`
	Difficulty      Difficulty           `json:"difficulty,omitempty"`
	PrepTimeMinutes int                  `json:"prep_time_minutes,omitempty"`
	Servings        int                  `json:"servings,omitempty"`
	GlassTypeID     string               `json:"glass_type_id,omitempty"`
	Garnish         string               `json:"garnish,omitempty"`
	Tags            []string             `json:"tags,omitempty"`
	ImageURL        string               `json:"image_url,omitempty"`
}

// IngredientCategory groups ingredients for filtering in the UI.
type IngredientCategory string

const (
	IngredientSpirit  IngredientCategory = "spirit"
	IngredientLiqueur IngredientCategory = "liqueur"
	IngredientMixer   IngredientCategory = "mixer"
	IngredientJuice   IngredientCategory = "juice"
	IngredientSyrup   IngredientCategory = "syrup"
	IngredientBitters IngredientCategory = "bitters"
	IngredientGarnish IngredientCategory = "garnish"
	IngredientOther   IngredientCategory = "other"
)

// Ingredient is a single ingredient record.
type Ingredient struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Category    IngredientCategory `json:"category,omitempty"`
	Description string             `json:"description,omitempty"`
	// ABV is the alcohol-by-volume percentage. Nil means non-alcoholic or
	// unknown; the alcoholic flag is derived from it, never stored.
	ABV *float64 `json:"abv,omitempty"`
}

// Alcoholic reports whether the ingredient contains alcohol, derived from
// the presence and value of ABV.
func (i Ingredient) Alcoholic() bool {
	return i.ABV != nil && *i.ABV > 0
}

// GlassType is a glassware record referenced by cocktails.
type GlassType struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Category is a browsing category with display metadata for the UI.
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
	Icon        string `json:"icon,omitempty"`
}
