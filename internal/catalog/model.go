package catalog

import (
	"fmt"
	"strings"
	"time"
)

// Season tags a recipe with the time of year it is cooked in.
type Season string

const (
	SeasonWinter Season = "winter"
	SeasonSpring Season = "spring"
	SeasonSummer Season = "summer"
	SeasonFall   Season = "fall"
)

var canonicalSeasons = []Season{SeasonWinter, SeasonSpring, SeasonSummer, SeasonFall}

// CanonicalSeasons returns the four seasons in calendar order.
func CanonicalSeasons() []Season {
	return append([]Season(nil), canonicalSeasons...)
}

// ParseSeason validates raw input and returns the matching Season.
func ParseSeason(raw string) (Season, error) {
	candidate := Season(strings.ToLower(strings.TrimSpace(raw)))
	if !candidate.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSeason, raw)
	}
	return candidate, nil
}

// Valid reports whether the season is one of the canonical values.
func (s Season) Valid() bool {
	for _, season := range canonicalSeasons {
		if s == season {
			return true
		}
	}
	return false
}

// Role is the permission tier stored on a profile.
type Role string

const (
	RoleReader Role = "reader"
	RoleEditor Role = "editor"
)

// NormalizeRole maps stored role values onto a Role, falling back to reader.
func NormalizeRole(raw string) Role {
	if Role(strings.ToLower(strings.TrimSpace(raw))) == RoleEditor {
		return RoleEditor
	}
	return RoleReader
}

// Recipe mirrors a row of the recipes table.
type Recipe struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Servings     int       `json:"servings"`
	PrepMinutes  int       `json:"prep_minutes"`
	CookMinutes  int       `json:"cook_minutes"`
	TotalMinutes int       `json:"total_minutes"`
	CreatedBy    string    `json:"created_by"`
	Instructions string    `json:"instructions"`
	Notes        string    `json:"notes"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Ingredient is a named ingredient shared across recipes.
type Ingredient struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RecipeIngredientLink is one ingredient line of a recipe with the ingredient name resolved.
type RecipeIngredientLink struct {
	RecipeID       string `json:"recipe_id"`
	IngredientID   string `json:"ingredient_id"`
	IngredientName string `json:"ingredient_name"`
	Quantity       string `json:"quantity"`
	Unit           string `json:"unit"`
	Comment        string `json:"comment"`
}

// RecipeSeasonLink associates a recipe with one season.
type RecipeSeasonLink struct {
	RecipeID string `json:"recipe_id"`
	Season   Season `json:"season"`
}

// Profile holds the display name and role of an authenticated user.
type Profile struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      Role   `json:"role"`
}

// Session carries the caller identity through every catalog call.
// The access token scopes all store operations; Role is the cached profile role.
type Session struct {
	AccessToken string
	UserID      string
	Email       string
	Role        Role
}

// IsEditor reports whether the session may use editor affordances.
func (s Session) IsEditor() bool {
	return s.Role == RoleEditor
}

// NewRecipe is the payload sent to the store when creating a recipe.
type NewRecipe struct {
	Name         string
	Servings     int
	PrepMinutes  int
	CookMinutes  int
	Instructions string
	Notes        string
	CreatedBy    string
}

// RecipePatch lists the recipe columns an update may touch. Unset fields are left alone.
type RecipePatch struct {
	Name         *string `json:"name,omitempty"`
	Servings     *int    `json:"servings,omitempty"`
	PrepMinutes  *int    `json:"prep_minutes,omitempty"`
	CookMinutes  *int    `json:"cook_minutes,omitempty"`
	Instructions *string `json:"instructions,omitempty"`
	Notes        *string `json:"notes,omitempty"`
}

// Columns returns the set fields keyed by column name.
func (p RecipePatch) Columns() map[string]any {
	columns := map[string]any{}
	if p.Name != nil {
		columns["name"] = strings.TrimSpace(*p.Name)
	}
	if p.Servings != nil {
		columns["servings"] = *p.Servings
	}
	if p.PrepMinutes != nil {
		columns["prep_minutes"] = *p.PrepMinutes
	}
	if p.CookMinutes != nil {
		columns["cook_minutes"] = *p.CookMinutes
	}
	if p.Instructions != nil {
		columns["instructions"] = *p.Instructions
	}
	if p.Notes != nil {
		columns["notes"] = *p.Notes
	}
	return columns
}

// LinkPatch lists the ingredient-line columns an update may touch.
type LinkPatch struct {
	Quantity *string `json:"quantity,omitempty"`
	Unit     *string `json:"unit,omitempty"`
	Comment  *string `json:"comment,omitempty"`
}

// Columns returns the set fields keyed by column name.
func (p LinkPatch) Columns() map[string]any {
	columns := map[string]any{}
	if p.Quantity != nil {
		columns["quantity"] = strings.TrimSpace(*p.Quantity)
	}
	if p.Unit != nil {
		columns["unit"] = strings.TrimSpace(*p.Unit)
	}
	if p.Comment != nil {
		columns["comment"] = strings.TrimSpace(*p.Comment)
	}
	return columns
}

// IngredientLine is one requested ingredient line of a recipe draft.
// IngredientID is optional; when empty the ingredient is resolved or created by Name.
type IngredientLine struct {
	IngredientID string `json:"ingredient_id"`
	Name         string `json:"name"`
	Quantity     string `json:"quantity"`
	Unit         string `json:"unit"`
	Comment      string `json:"comment"`
}

// RecipeDraft is the input of a full recipe creation.
type RecipeDraft struct {
	Name         string           `json:"name"`
	Servings     int              `json:"servings"`
	PrepMinutes  int              `json:"prep_minutes"`
	CookMinutes  int              `json:"cook_minutes"`
	Instructions string           `json:"instructions"`
	Notes        string           `json:"notes"`
	Seasons      []string         `json:"seasons"`
	Ingredients  []IngredientLine `json:"ingredients"`
}
