package catalog

import (
	"context"

	"github.com/MarcoPoloResearchLab/cuisine/backend/internal/cache"
	"go.uber.org/zap"
)

// CachedRepository memoizes every read of the wrapped Repository and applies the
// InvalidateAllOnWrite policy: any write, once the store has been called, clears the
// entire cache before returning. A failed profile insert is the one exception.
// Aggregate reads are keyed on parameters that never name the changed row, so
// narrower invalidation would serve stale lists.
type CachedRepository struct {
	base   Repository
	memo   *cache.Memo
	logger *zap.Logger
}

// NewCachedRepository wraps base with memo.
func NewCachedRepository(base Repository, memo *cache.Memo, logger *zap.Logger) (*CachedRepository, error) {
	if base == nil {
		return nil, errMissingRepository
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedRepository{base: base, memo: memo, logger: logger}, nil
}

// InvalidateAll drops every memoized read.
func (r *CachedRepository) InvalidateAll(ctx context.Context) {
	if r.memo == nil {
		return
	}
	if err := r.memo.Invalidate(ctx); err != nil {
		r.logger.Error("cache invalidation failed", zap.Error(err))
	}
}

func (r *CachedRepository) afterWrite(ctx context.Context) {
	r.InvalidateAll(ctx)
}

func (r *CachedRepository) ListRecipes(ctx context.Context, session Session) ([]Recipe, error) {
	key := cache.Key("list_recipes", session.AccessToken)
	return cache.Fetch(ctx, r.memo, key, func(ctx context.Context) ([]Recipe, error) {
		return r.base.ListRecipes(ctx, session)
	})
}

func (r *CachedRepository) ListMyRecipes(ctx context.Context, session Session) ([]Recipe, error) {
	key := cache.Key("list_my_recipes", session.AccessToken, session.UserID)
	return cache.Fetch(ctx, r.memo, key, func(ctx context.Context) ([]Recipe, error) {
		return r.base.ListMyRecipes(ctx, session)
	})
}

func (r *CachedRepository) CreateRecipe(ctx context.Context, session Session, recipe NewRecipe) (Recipe, error) {
	defer r.afterWrite(ctx)
	return r.base.CreateRecipe(ctx, session, recipe)
}

func (r *CachedRepository) UpdateRecipe(ctx context.Context, session Session, recipeID string, patch RecipePatch) (Recipe, error) {
	defer r.afterWrite(ctx)
	return r.base.UpdateRecipe(ctx, session, recipeID, patch)
}

func (r *CachedRepository) DeleteRecipe(ctx context.Context, session Session, recipeID string) error {
	defer r.afterWrite(ctx)
	return r.base.DeleteRecipe(ctx, session, recipeID)
}

func (r *CachedRepository) ListIngredients(ctx context.Context, session Session) ([]Ingredient, error) {
	key := cache.Key("list_ingredients", session.AccessToken)
	return cache.Fetch(ctx, r.memo, key, func(ctx context.Context) ([]Ingredient, error) {
		return r.base.ListIngredients(ctx, session)
	})
}

func (r *CachedRepository) FindIngredientByName(ctx context.Context, session Session, name string) (*Ingredient, error) {
	key := cache.Key("find_ingredient_by_name", session.AccessToken, name)
	return cache.Fetch(ctx, r.memo, key, func(ctx context.Context) (*Ingredient, error) {
		return r.base.FindIngredientByName(ctx, session, name)
	})
}

func (r *CachedRepository) CreateIngredient(ctx context.Context, session Session, name string) (Ingredient, error) {
	defer r.afterWrite(ctx)
	return r.base.CreateIngredient(ctx, session, name)
}

func (r *CachedRepository) ListRecipeIngredients(ctx context.Context, session Session) ([]RecipeIngredientLink, error) {
	key := cache.Key("list_recipe_ingredients", session.AccessToken)
	return cache.Fetch(ctx, r.memo, key, func(ctx context.Context) ([]RecipeIngredientLink, error) {
		return r.base.ListRecipeIngredients(ctx, session)
	})
}

func (r *CachedRepository) ListIngredientsForRecipe(ctx context.Context, session Session, recipeID string) ([]RecipeIngredientLink, error) {
	key := cache.Key("list_ingredients_for_recipe", session.AccessToken, recipeID)
	return cache.Fetch(ctx, r.memo, key, func(ctx context.Context) ([]RecipeIngredientLink, error) {
		return r.base.ListIngredientsForRecipe(ctx, session, recipeID)
	})
}

func (r *CachedRepository) AddRecipeIngredient(ctx context.Context, session Session, link RecipeIngredientLink) (RecipeIngredientLink, error) {
	defer r.afterWrite(ctx)
	return r.base.AddRecipeIngredient(ctx, session, link)
}

func (r *CachedRepository) UpdateRecipeIngredient(ctx context.Context, session Session, recipeID, ingredientID string, patch LinkPatch) error {
	defer r.afterWrite(ctx)
	return r.base.UpdateRecipeIngredient(ctx, session, recipeID, ingredientID, patch)
}

func (r *CachedRepository) DeleteRecipeIngredient(ctx context.Context, session Session, recipeID, ingredientID string) error {
	defer r.afterWrite(ctx)
	return r.base.DeleteRecipeIngredient(ctx, session, recipeID, ingredientID)
}

func (r *CachedRepository) ListRecipeSeasons(ctx context.Context, session Session) ([]RecipeSeasonLink, error) {
	key := cache.Key("list_recipe_seasons", session.AccessToken)
	return cache.Fetch(ctx, r.memo, key, func(ctx context.Context) ([]RecipeSeasonLink, error) {
		return r.base.ListRecipeSeasons(ctx, session)
	})
}

func (r *CachedRepository) SetRecipeSeasons(ctx context.Context, session Session, recipeID string, seasons []Season) error {
	defer r.afterWrite(ctx)
	return r.base.SetRecipeSeasons(ctx, session, recipeID, seasons)
}

func (r *CachedRepository) ListProfilesByIDs(ctx context.Context, session Session, ids []string) ([]Profile, error) {
	normalized := cache.SortedUnique(ids)
	key := cache.Key("list_profiles_by_ids", session.AccessToken, normalized...)
	return cache.Fetch(ctx, r.memo, key, func(ctx context.Context) ([]Profile, error) {
		return r.base.ListProfilesByIDs(ctx, session, normalized)
	})
}

func (r *CachedRepository) GetProfile(ctx context.Context, session Session, userID string) (*Profile, error) {
	key := cache.Key("get_profile", session.AccessToken, userID)
	return cache.Fetch(ctx, r.memo, key, func(ctx context.Context) (*Profile, error) {
		return r.base.GetProfile(ctx, session, userID)
	})
}

// CreateProfile clears the cache only after a successful insert.
func (r *CachedRepository) CreateProfile(ctx context.Context, session Session, profile Profile) error {
	if err := r.base.CreateProfile(ctx, session, profile); err != nil {
		return err
	}
	r.afterWrite(ctx)
	return nil
}

func (r *CachedRepository) SetProfileRole(ctx context.Context, session Session, userID string, role Role) error {
	defer r.afterWrite(ctx)
	return r.base.SetProfileRole(ctx, session, userID, role)
}
