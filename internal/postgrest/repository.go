package postgrest

import (
	"context"
	"net/http"

	"github.com/MarcoPoloResearchLab/cuisine/backend/internal/catalog"
	pgrest "github.com/supabase-community/postgrest-go"
)

const (
	tableRecipes           = "recipes"
	tableIngredients       = "ingredients"
	tableRecipeIngredients = "recipe_ingredients"
	tableRecipeSeasons     = "recipe_seasons"
	tableProfiles          = "profiles"
)

var (
	ascending  = &pgrest.OrderOpts{Ascending: true}
	descending = &pgrest.OrderOpts{Ascending: false}
)

func (c *Client) ListRecipes(ctx context.Context, session catalog.Session) ([]catalog.Recipe, error) {
	client, tripper, cancel := c.open(ctx, session, "list_recipes", nil)
	defer cancel()
	var rows []recipeRow
	query := client.From(tableRecipes).Select(recipeColumns, "", false).Order("name", ascending)
	if err := c.run(tripper, query, &rows); err != nil {
		return nil, err
	}
	return toRecipes(rows), nil
}

func (c *Client) ListMyRecipes(ctx context.Context, session catalog.Session) ([]catalog.Recipe, error) {
	client, tripper, cancel := c.open(ctx, session, "list_my_recipes", nil)
	defer cancel()
	var rows []recipeRow
	query := client.From(tableRecipes).Select(recipeColumns, "", false).
		Eq("created_by", session.UserID).
		Order("created_at", descending)
	if err := c.run(tripper, query, &rows); err != nil {
		return nil, err
	}
	return toRecipes(rows), nil
}

func (c *Client) CreateRecipe(ctx context.Context, session catalog.Session, recipe catalog.NewRecipe) (catalog.Recipe, error) {
	client, tripper, cancel := c.open(ctx, session, "create_recipe", nil)
	defer cancel()
	row := newRecipeRow{
		Name:         recipe.Name,
		Servings:     recipe.Servings,
		PrepMinutes:  recipe.PrepMinutes,
		CookMinutes:  recipe.CookMinutes,
		Instructions: recipe.Instructions,
		Notes:        recipe.Notes,
		CreatedBy:    recipe.CreatedBy,
	}
	var rows []recipeRow
	query := client.From(tableRecipes).Insert(row, false, "", returnRepresentation, "")
	if err := c.run(tripper, query, &rows); err != nil {
		return catalog.Recipe{}, err
	}
	if len(rows) == 0 {
		return catalog.Recipe{}, catalog.ErrPermissionDenied
	}
	return rows[0].toRecipe(), nil
}

// UpdateRecipe returns catalog.ErrNotFound when no visible row matched, which is how
// PostgREST reports an update filtered out by row-level security.
func (c *Client) UpdateRecipe(ctx context.Context, session catalog.Session, recipeID string, patch catalog.RecipePatch) (catalog.Recipe, error) {
	client, tripper, cancel := c.open(ctx, session, "update_recipe", nil)
	defer cancel()
	var rows []recipeRow
	query := client.From(tableRecipes).Update(patch.Columns(), returnRepresentation, "").Eq("id", recipeID)
	if err := c.run(tripper, query, &rows); err != nil {
		return catalog.Recipe{}, err
	}
	if len(rows) == 0 {
		return catalog.Recipe{}, catalog.ErrNotFound
	}
	return rows[0].toRecipe(), nil
}

func (c *Client) DeleteRecipe(ctx context.Context, session catalog.Session, recipeID string) error {
	client, tripper, cancel := c.open(ctx, session, "delete_recipe", nil)
	defer cancel()
	return c.run(tripper, client.From(tableRecipes).Delete(returnMinimal, "").Eq("id", recipeID), nil)
}

func (c *Client) ListIngredients(ctx context.Context, session catalog.Session) ([]catalog.Ingredient, error) {
	client, tripper, cancel := c.open(ctx, session, "list_ingredients", nil)
	defer cancel()
	var rows []ingredientRow
	query := client.From(tableIngredients).Select(ingredientColumns, "", false).Order("name", ascending)
	if err := c.run(tripper, query, &rows); err != nil {
		return nil, err
	}
	ingredients := make([]catalog.Ingredient, len(rows))
	for index, row := range rows {
		ingredients[index] = row.toIngredient()
	}
	return ingredients, nil
}

func (c *Client) FindIngredientByName(ctx context.Context, session catalog.Session, name string) (*catalog.Ingredient, error) {
	client, tripper, cancel := c.open(ctx, session, "find_ingredient_by_name", nil)
	defer cancel()
	var rows []ingredientRow
	query := client.From(tableIngredients).Select(ingredientColumns, "", false).Eq("name", name).Limit(1, "")
	if err := c.run(tripper, query, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	ingredient := rows[0].toIngredient()
	return &ingredient, nil
}

func (c *Client) CreateIngredient(ctx context.Context, session catalog.Session, name string) (catalog.Ingredient, error) {
	client, tripper, cancel := c.open(ctx, session, "create_ingredient", nil)
	defer cancel()
	var rows []ingredientRow
	query := client.From(tableIngredients).Insert(map[string]string{"name": name}, false, "", returnRepresentation, "")
	if err := c.run(tripper, query, &rows); err != nil {
		return catalog.Ingredient{}, err
	}
	if len(rows) == 0 {
		return catalog.Ingredient{}, catalog.ErrPermissionDenied
	}
	return rows[0].toIngredient(), nil
}

func (c *Client) ListRecipeIngredients(ctx context.Context, session catalog.Session) ([]catalog.RecipeIngredientLink, error) {
	client, tripper, cancel := c.open(ctx, session, "list_recipe_ingredients", nil)
	defer cancel()
	var rows []linkRow
	if err := c.run(tripper, client.From(tableRecipeIngredients).Select(linkColumns, "", false), &rows); err != nil {
		return nil, err
	}
	return toLinks(rows), nil
}

func (c *Client) ListIngredientsForRecipe(ctx context.Context, session catalog.Session, recipeID string) ([]catalog.RecipeIngredientLink, error) {
	client, tripper, cancel := c.open(ctx, session, "list_ingredients_for_recipe", nil)
	defer cancel()
	var rows []linkRow
	query := client.From(tableRecipeIngredients).Select(linkColumns, "", false).Eq("recipe_id", recipeID)
	if err := c.run(tripper, query, &rows); err != nil {
		return nil, err
	}
	return toLinks(rows), nil
}

// AddRecipeIngredient keeps the caller's ingredient name, since an insert
// representation carries no embedded ingredient.
func (c *Client) AddRecipeIngredient(ctx context.Context, session catalog.Session, link catalog.RecipeIngredientLink) (catalog.RecipeIngredientLink, error) {
	client, tripper, cancel := c.open(ctx, session, "add_recipe_ingredient", nil)
	defer cancel()
	row := newLinkRow{
		RecipeID:     link.RecipeID,
		IngredientID: link.IngredientID,
		Quantity:     link.Quantity,
		Unit:         link.Unit,
		Comment:      link.Comment,
	}
	var rows []linkRow
	query := client.From(tableRecipeIngredients).Insert(row, false, "", returnRepresentation, "")
	if err := c.run(tripper, query, &rows); err != nil {
		return catalog.RecipeIngredientLink{}, err
	}
	if len(rows) == 0 {
		return link, nil
	}
	created := rows[0].toLink()
	if created.IngredientName == "" {
		created.IngredientName = link.IngredientName
	}
	return created, nil
}

func (c *Client) UpdateRecipeIngredient(ctx context.Context, session catalog.Session, recipeID, ingredientID string, patch catalog.LinkPatch) error {
	client, tripper, cancel := c.open(ctx, session, "update_recipe_ingredient", nil)
	defer cancel()
	query := client.From(tableRecipeIngredients).Update(patch.Columns(), returnMinimal, "").
		Eq("recipe_id", recipeID).
		Eq("ingredient_id", ingredientID)
	return c.run(tripper, query, nil)
}

func (c *Client) DeleteRecipeIngredient(ctx context.Context, session catalog.Session, recipeID, ingredientID string) error {
	client, tripper, cancel := c.open(ctx, session, "delete_recipe_ingredient", nil)
	defer cancel()
	query := client.From(tableRecipeIngredients).Delete(returnMinimal, "").
		Eq("recipe_id", recipeID).
		Eq("ingredient_id", ingredientID)
	return c.run(tripper, query, nil)
}

func (c *Client) ListRecipeSeasons(ctx context.Context, session catalog.Session) ([]catalog.RecipeSeasonLink, error) {
	client, tripper, cancel := c.open(ctx, session, "list_recipe_seasons", nil)
	defer cancel()
	var rows []seasonRow
	if err := c.run(tripper, client.From(tableRecipeSeasons).Select(seasonColumns, "", false), &rows); err != nil {
		return nil, err
	}
	links := make([]catalog.RecipeSeasonLink, len(rows))
	for index, row := range rows {
		links[index] = catalog.RecipeSeasonLink{RecipeID: row.RecipeID, Season: catalog.Season(row.Season)}
	}
	return links, nil
}

// SetRecipeSeasons deletes the recipe's season rows and inserts the new set. The two
// requests are not atomic.
func (c *Client) SetRecipeSeasons(ctx context.Context, session catalog.Session, recipeID string, seasons []catalog.Season) error {
	client, tripper, cancel := c.open(ctx, session, "set_recipe_seasons.delete", nil)
	defer cancel()
	if err := c.run(tripper, client.From(tableRecipeSeasons).Delete(returnMinimal, "").Eq("recipe_id", recipeID), nil); err != nil {
		return err
	}
	if len(seasons) == 0 {
		return nil
	}
	rows := make([]seasonRow, len(seasons))
	for index, season := range seasons {
		rows[index] = seasonRow{RecipeID: recipeID, Season: string(season)}
	}
	client, tripper, cancel = c.open(ctx, session, "set_recipe_seasons.insert", nil)
	defer cancel()
	return c.run(tripper, client.From(tableRecipeSeasons).Insert(rows, false, "", returnMinimal, ""), nil)
}

func (c *Client) ListProfilesByIDs(ctx context.Context, session catalog.Session, ids []string) ([]catalog.Profile, error) {
	if len(ids) == 0 {
		return []catalog.Profile{}, nil
	}
	client, tripper, cancel := c.open(ctx, session, "list_profiles_by_ids", nil)
	defer cancel()
	var rows []profileRow
	query := client.From(tableProfiles).Select(profileColumns, "", false).In("id", ids)
	if err := c.run(tripper, query, &rows); err != nil {
		return nil, err
	}
	profiles := make([]catalog.Profile, len(rows))
	for index, row := range rows {
		profiles[index] = row.toProfile()
	}
	return profiles, nil
}

func (c *Client) GetProfile(ctx context.Context, session catalog.Session, userID string) (*catalog.Profile, error) {
	client, tripper, cancel := c.open(ctx, session, "get_profile", nil)
	defer cancel()
	var rows []profileRow
	query := client.From(tableProfiles).Select(profileColumns, "", false).Eq("id", userID).Limit(1, "")
	if err := c.run(tripper, query, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	profile := rows[0].toProfile()
	return &profile, nil
}

// CreateProfile inserts the profile and leaves an existing row with the same id
// untouched. A conflict answer counts as success.
func (c *Client) CreateProfile(ctx context.Context, session catalog.Session, profile catalog.Profile) error {
	client, tripper, cancel := c.open(ctx, session, "create_profile", map[string]string{
		"Prefer": "resolution=ignore-duplicates",
	})
	defer cancel()
	row := newProfileRow{
		ID:        profile.ID,
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		Role:      string(catalog.NormalizeRole(string(profile.Role))),
	}
	err := c.run(tripper, client.From(tableProfiles).Insert(row, false, "", returnMinimal, ""), nil)
	if tripper.status == http.StatusConflict {
		return nil
	}
	return err
}

func (c *Client) SetProfileRole(ctx context.Context, session catalog.Session, userID string, role catalog.Role) error {
	client, tripper, cancel := c.open(ctx, session, "set_profile_role", nil)
	defer cancel()
	var rows []profileRow
	query := client.From(tableProfiles).Update(map[string]string{"role": string(role)}, returnRepresentation, "").Eq("id", userID)
	if err := c.run(tripper, query, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return catalog.ErrNotFound
	}
	return nil
}
