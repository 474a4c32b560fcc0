package core

import "testing"

func TestCollections_FixedOrder(t *testing.T) {
	got := Collections()
	want := []Collection{
		CollectionCocktails,
		CollectionIngredients,
		CollectionGlassTypes,
		CollectionCategories,
	}
	if len(got) != len(want) {
		t.Fatalf("Collections() returned %d entries, want %d", len(got), len(want))
	}
	for i, c := range got {
		if c != want[i] {
			t.Errorf("Collections()[%d] = %q, want %q", i, c, want[i])
		}
	}
}

func TestCollection_Valid(t *testing.T) {
	for _, c := range Collections() {
		if !c.Valid() {
			t.Errorf("Collection(%q).Valid() = false, want true", c)
		}
	}
	if Collection("garnishes").Valid() {
		t.Error("unknown collection should not be valid")
	}
	if Collection("").Valid() {
		t.Error("empty collection should not be valid")
	}
}

func TestDifficulty_Valid(t *testing.T) {
	for _, d := range []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard} {
		if !d.Valid() {
			t.Errorf("Difficulty(%q).Valid() = false, want true", d)
		}
	}
	if Difficulty("impossible").Valid() {
		t.Error("unknown difficulty should not be valid")
	}
}

func TestIngredient_Alcoholic(t *testing.T) {
	abv := 40.0
	zero := 0.0

	tests := []struct {
		name string
		ing  Ingredient
		want bool
	}{
		{"with abv", Ingredient{Name: "Gin", ABV: &abv}, true},
		{"zero abv", Ingredient{Name: "Tonic", ABV: &zero}, false},
		{"no abv", Ingredient{Name: "Lime Juice"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ing.Alcoholic(); got != tt.want {
				t.Errorf("Alcoholic() = %v, want %v", got, tt.want)
			}
		})
	}
}
