package catalog

import "context"

// Repository is the narrow contract of the external data store.
// Every call is scoped by the session; the store enforces row-level permissions.
// Lookups that find nothing return a nil pointer and a nil error.
type Repository interface {
	ListRecipes(ctx context.Context, session Session) ([]Recipe, error)
	ListMyRecipes(ctx context.Context, session Session) ([]Recipe, error)
	CreateRecipe(ctx context.Context, session Session, recipe NewRecipe) (Recipe, error)
	UpdateRecipe(ctx context.Context, session Session, recipeID string, patch RecipePatch) (Recipe, error)
	DeleteRecipe(ctx context.Context, session Session, recipeID string) error

	ListIngredients(ctx context.Context, session Session) ([]Ingredient, error)
	FindIngredientByName(ctx context.Context, session Session, name string) (*Ingredient, error)
	CreateIngredient(ctx context.Context, session Session, name string) (Ingredient, error)

	ListRecipeIngredients(ctx context.Context, session Session) ([]RecipeIngredientLink, error)
	ListIngredientsForRecipe(ctx context.Context, session Session, recipeID string) ([]RecipeIngredientLink, error)
	AddRecipeIngredient(ctx context.Context, session Session, link RecipeIngredientLink) (RecipeIngredientLink, error)
	UpdateRecipeIngredient(ctx context.Context, session Session, recipeID, ingredientID string, patch LinkPatch) error
	DeleteRecipeIngredient(ctx context.Context, session Session, recipeID, ingredientID string) error

	ListRecipeSeasons(ctx context.Context, session Session) ([]RecipeSeasonLink, error)
	SetRecipeSeasons(ctx context.Context, session Session, recipeID string, seasons []Season) error

	ListProfilesByIDs(ctx context.Context, session Session, ids []string) ([]Profile, error)
	GetProfile(ctx context.Context, session Session, userID string) (*Profile, error)
	CreateProfile(ctx context.Context, session Session, profile Profile) error
	SetProfileRole(ctx context.Context, session Session, userID string, role Role) error
}
