package postgrest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/cuisine/backend/internal/catalog"
)

const (
	recipeColumns     = "id,name,servings,prep_minutes,cook_minutes,total_minutes,created_by,instructions,notes,created_at,updated_at"
	ingredientColumns = "id,name"
	linkColumns       = "recipe_id,ingredient_id,quantity,unit,comment,ingredients(name)"
	seasonColumns     = "recipe_id,season"
	profileColumns    = "id,first_name,last_name,role"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05.999999",
}

// timestamp accepts the timestamp and timestamptz renderings PostgREST emits.
type timestamp struct {
	time.Time
}

func (t *timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("postgrest: unrecognized timestamp %q", raw)
}

func deref[T any](value *T) T {
	var zero T
	if value == nil {
		return zero
	}
	return *value
}

type recipeRow struct {
	ID           string     `json:"id"`
	Name         *string    `json:"name"`
	Servings     *int       `json:"servings"`
	PrepMinutes  *int       `json:"prep_minutes"`
	CookMinutes  *int       `json:"cook_minutes"`
	TotalMinutes *int       `json:"total_minutes"`
	CreatedBy    *string    `json:"created_by"`
	Instructions *string    `json:"instructions"`
	Notes        *string    `json:"notes"`
	CreatedAt    *timestamp `json:"created_at"`
	UpdatedAt    *timestamp `json:"updated_at"`
}

func (r recipeRow) toRecipe() catalog.Recipe {
	recipe := catalog.Recipe{
		ID:           r.ID,
		Name:         deref(r.Name),
		Servings:     deref(r.Servings),
		PrepMinutes:  deref(r.PrepMinutes),
		CookMinutes:  deref(r.CookMinutes),
		TotalMinutes: deref(r.TotalMinutes),
		CreatedBy:    deref(r.CreatedBy),
		Instructions: deref(r.Instructions),
		Notes:        deref(r.Notes),
	}
	if r.TotalMinutes == nil {
		recipe.TotalMinutes = recipe.PrepMinutes + recipe.CookMinutes
	}
	if r.CreatedAt != nil {
		recipe.CreatedAt = r.CreatedAt.Time
	}
	if r.UpdatedAt != nil {
		recipe.UpdatedAt = r.UpdatedAt.Time
	}
	return recipe
}

func toRecipes(rows []recipeRow) []catalog.Recipe {
	recipes := make([]catalog.Recipe, len(rows))
	for index, row := range rows {
		recipes[index] = row.toRecipe()
	}
	return recipes
}

type newRecipeRow struct {
	Name         string `json:"name"`
	Servings     int    `json:"servings"`
	PrepMinutes  int    `json:"prep_minutes"`
	CookMinutes  int    `json:"cook_minutes"`
	Instructions string `json:"instructions"`
	Notes        string `json:"notes"`
	CreatedBy    string `json:"created_by"`
}

type ingredientRow struct {
	ID   string  `json:"id"`
	Name *string `json:"name"`
}

func (r ingredientRow) toIngredient() catalog.Ingredient {
	return catalog.Ingredient{ID: r.ID, Name: deref(r.Name)}
}

type embeddedIngredient struct {
	Name *string `json:"name"`
}

// linkRow is a recipe_ingredients row with the ingredient name embedded through
// the ingredients(name) resource.
type linkRow struct {
	RecipeID     string              `json:"recipe_id"`
	IngredientID string              `json:"ingredient_id"`
	Quantity     *string             `json:"quantity"`
	Unit         *string             `json:"unit"`
	Comment      *string             `json:"comment"`
	Ingredient   *embeddedIngredient `json:"ingredients"`
}

func (r linkRow) toLink() catalog.RecipeIngredientLink {
	link := catalog.RecipeIngredientLink{
		RecipeID:     r.RecipeID,
		IngredientID: r.IngredientID,
		Quantity:     deref(r.Quantity),
		Unit:         deref(r.Unit),
		Comment:      deref(r.Comment),
	}
	if r.Ingredient != nil {
		link.IngredientName = deref(r.Ingredient.Name)
	}
	return link
}

func toLinks(rows []linkRow) []catalog.RecipeIngredientLink {
	links := make([]catalog.RecipeIngredientLink, len(rows))
	for index, row := range rows {
		links[index] = row.toLink()
	}
	return links
}

type newLinkRow struct {
	RecipeID     string `json:"recipe_id"`
	IngredientID string `json:"ingredient_id"`
	Quantity     string `json:"quantity"`
	Unit         string `json:"unit"`
	Comment      string `json:"comment"`
}

type seasonRow struct {
	RecipeID string `json:"recipe_id"`
	Season   string `json:"season"`
}

type profileRow struct {
	ID        string  `json:"id"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Role      *string `json:"role"`
}

func (r profileRow) toProfile() catalog.Profile {
	return catalog.Profile{
		ID:        r.ID,
		FirstName: deref(r.FirstName),
		LastName:  deref(r.LastName),
		Role:      catalog.NormalizeRole(deref(r.Role)),
	}
}

type newProfileRow struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Role      string `json:"role"`
}
