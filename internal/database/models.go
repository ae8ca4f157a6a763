package database

import (
	"time"

	"github.com/MarcoPoloResearchLab/cuisine/backend/internal/catalog"
)

// ProfileRecord stores the display name and role of an authenticated user.
type ProfileRecord struct {
	ID        string `gorm:"column:id;primaryKey;size:190"`
	FirstName string `gorm:"column:first_name;size:190;not null;default:''"`
	LastName  string `gorm:"column:last_name;size:190;not null;default:''"`
	Role      string `gorm:"column:role;size:16;not null;default:'reader'"`
}

// TableName provides the explicit table binding for GORM.
func (ProfileRecord) TableName() string {
	return "profiles"
}

func (r ProfileRecord) toProfile() catalog.Profile {
	return catalog.Profile{
		ID:        r.ID,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Role:      catalog.NormalizeRole(r.Role),
	}
}

// IngredientRecord stores a uniquely named ingredient.
type IngredientRecord struct {
	ID   string `gorm:"column:id;primaryKey;size:36"`
	Name string `gorm:"column:name;size:190;not null;uniqueIndex:idx_ingredients_name"`
}

// TableName provides the explicit table binding for GORM.
func (IngredientRecord) TableName() string {
	return "ingredients"
}

// RecipeRecord stores a recipe row. TotalMinutes is maintained by the store.
type RecipeRecord struct {
	ID               string `gorm:"column:id;primaryKey;size:36"`
	Name             string `gorm:"column:name;size:190;not null"`
	Servings         int    `gorm:"column:servings;not null;default:1"`
	PrepMinutes      int    `gorm:"column:prep_minutes;not null;default:0"`
	CookMinutes      int    `gorm:"column:cook_minutes;not null;default:0"`
	TotalMinutes     int    `gorm:"column:total_minutes;not null;default:0"`
	CreatedBy        string `gorm:"column:created_by;size:190;not null;index:idx_recipes_created_by"`
	Instructions     string `gorm:"column:instructions;type:text;not null;default:''"`
	Notes            string `gorm:"column:notes;type:text;not null;default:''"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (RecipeRecord) TableName() string {
	return "recipes"
}

func (r RecipeRecord) toRecipe() catalog.Recipe {
	return catalog.Recipe{
		ID:           r.ID,
		Name:         r.Name,
		Servings:     r.Servings,
		PrepMinutes:  r.PrepMinutes,
		CookMinutes:  r.CookMinutes,
		TotalMinutes: r.TotalMinutes,
		CreatedBy:    r.CreatedBy,
		Instructions: r.Instructions,
		Notes:        r.Notes,
		CreatedAt:    time.Unix(r.CreatedAtSeconds, 0).UTC(),
		UpdatedAt:    time.Unix(r.UpdatedAtSeconds, 0).UTC(),
	}
}

// RecipeIngredientRecord is one ingredient line of a recipe. A recipe may list the
// same ingredient more than once, so lines carry their own id.
type RecipeIngredientRecord struct {
	ID           string `gorm:"column:id;primaryKey;size:36"`
	RecipeID     string `gorm:"column:recipe_id;size:36;not null;index:idx_recipe_ingredients_recipe"`
	IngredientID string `gorm:"column:ingredient_id;size:36;not null;index:idx_recipe_ingredients_ingredient"`
	Quantity     string `gorm:"column:quantity;size:64;not null;default:''"`
	Unit         string `gorm:"column:unit;size:64;not null;default:''"`
	Comment      string `gorm:"column:comment;size:255;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (RecipeIngredientRecord) TableName() string {
	return "recipe_ingredients"
}

// RecipeSeasonRecord tags a recipe with one season.
type RecipeSeasonRecord struct {
	RecipeID string `gorm:"column:recipe_id;primaryKey;size:36"`
	Season   string `gorm:"column:season;primaryKey;size:16"`
}

// TableName provides the explicit table binding for GORM.
func (RecipeSeasonRecord) TableName() string {
	return "recipe_seasons"
}

// linkRow is a recipe_ingredients row joined with its ingredient name.
type linkRow struct {
	RecipeID       string
	IngredientID   string
	IngredientName string
	Quantity       string
	Unit           string
	Comment        string
}

func (r linkRow) toLink() catalog.RecipeIngredientLink {
	return catalog.RecipeIngredientLink{
		RecipeID:       r.RecipeID,
		IngredientID:   r.IngredientID,
		IngredientName: r.IngredientName,
		Quantity:       r.Quantity,
		Unit:           r.Unit,
		Comment:        r.Comment,
	}
}
