package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// fakeRepository is an in-memory Repository that records calls and fails on demand.
type fakeRepository struct {
	mu          sync.Mutex
	calls       []string
	failures    map[string]error
	nextID      int
	recipes     []Recipe
	ingredients []Ingredient
	links       []RecipeIngredientLink
	seasons     []RecipeSeasonLink
	profiles    map[string]Profile

	afterListRecipes func()
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{failures: map[string]error{}, profiles: map[string]Profile{}}
}

func (f *fakeRepository) failOn(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method] = err
}

func (f *fakeRepository) record(method string) error {
	f.calls = append(f.calls, method)
	return f.failures[method]
}

func (f *fakeRepository) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, call := range f.calls {
		if call == method {
			count++
		}
	}
	return count
}

func (f *fakeRepository) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeRepository) newID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

// ListRecipes snapshots the recipes, then runs afterListRecipes outside the lock so a
// test can hold the read open while writes proceed.
func (f *fakeRepository) ListRecipes(_ context.Context, _ Session) ([]Recipe, error) {
	f.mu.Lock()
	if err := f.record("ListRecipes"); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	recipes := append([]Recipe(nil), f.recipes...)
	hook := f.afterListRecipes
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return recipes, nil
}

func (f *fakeRepository) ListMyRecipes(_ context.Context, session Session) ([]Recipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListMyRecipes"); err != nil {
		return nil, err
	}
	var mine []Recipe
	for index := len(f.recipes) - 1; index >= 0; index-- {
		if f.recipes[index].CreatedBy == session.UserID {
			mine = append(mine, f.recipes[index])
		}
	}
	return mine, nil
}

func (f *fakeRepository) CreateRecipe(_ context.Context, _ Session, recipe NewRecipe) (Recipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateRecipe"); err != nil {
		return Recipe{}, err
	}
	created := Recipe{
		ID:           f.newID("recipe"),
		Name:         recipe.Name,
		Servings:     recipe.Servings,
		PrepMinutes:  recipe.PrepMinutes,
		CookMinutes:  recipe.CookMinutes,
		TotalMinutes: recipe.PrepMinutes + recipe.CookMinutes,
		CreatedBy:    recipe.CreatedBy,
		Instructions: recipe.Instructions,
		Notes:        recipe.Notes,
	}
	f.recipes = append(f.recipes, created)
	return created, nil
}

func (f *fakeRepository) UpdateRecipe(_ context.Context, _ Session, recipeID string, patch RecipePatch) (Recipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UpdateRecipe"); err != nil {
		return Recipe{}, err
	}
	for index := range f.recipes {
		if f.recipes[index].ID != recipeID {
			continue
		}
		recipe := &f.recipes[index]
		if patch.Name != nil {
			recipe.Name = *patch.Name
		}
		if patch.Servings != nil {
			recipe.Servings = *patch.Servings
		}
		if patch.PrepMinutes != nil {
			recipe.PrepMinutes = *patch.PrepMinutes
		}
		if patch.CookMinutes != nil {
			recipe.CookMinutes = *patch.CookMinutes
		}
		recipe.TotalMinutes = recipe.PrepMinutes + recipe.CookMinutes
		return *recipe, nil
	}
	return Recipe{}, ErrNotFound
}

func (f *fakeRepository) DeleteRecipe(_ context.Context, _ Session, recipeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteRecipe"); err != nil {
		return err
	}
	kept := f.recipes[:0]
	for _, recipe := range f.recipes {
		if recipe.ID != recipeID {
			kept = append(kept, recipe)
		}
	}
	f.recipes = kept
	return nil
}

func (f *fakeRepository) ListIngredients(_ context.Context, _ Session) ([]Ingredient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListIngredients"); err != nil {
		return nil, err
	}
	sorted := append([]Ingredient(nil), f.ingredients...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return sorted, nil
}

func (f *fakeRepository) FindIngredientByName(_ context.Context, _ Session, name string) (*Ingredient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("FindIngredientByName"); err != nil {
		return nil, err
	}
	for _, ingredient := range f.ingredients {
		if ingredient.Name == name {
			found := ingredient
			return &found, nil
		}
	}
	return nil, nil
}

func (f *fakeRepository) CreateIngredient(_ context.Context, _ Session, name string) (Ingredient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateIngredient"); err != nil {
		return Ingredient{}, err
	}
	created := Ingredient{ID: f.newID("ingredient"), Name: name}
	f.ingredients = append(f.ingredients, created)
	return created, nil
}

func (f *fakeRepository) ingredientName(id string) string {
	for _, ingredient := range f.ingredients {
		if ingredient.ID == id {
			return ingredient.Name
		}
	}
	return ""
}

func (f *fakeRepository) ListRecipeIngredients(_ context.Context, _ Session) ([]RecipeIngredientLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListRecipeIngredients"); err != nil {
		return nil, err
	}
	links := make([]RecipeIngredientLink, 0, len(f.links))
	for _, link := range f.links {
		link.IngredientName = f.ingredientName(link.IngredientID)
		links = append(links, link)
	}
	return links, nil
}

func (f *fakeRepository) ListIngredientsForRecipe(_ context.Context, _ Session, recipeID string) ([]RecipeIngredientLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListIngredientsForRecipe"); err != nil {
		return nil, err
	}
	var links []RecipeIngredientLink
	for _, link := range f.links {
		if link.RecipeID == recipeID {
			link.IngredientName = f.ingredientName(link.IngredientID)
			links = append(links, link)
		}
	}
	return links, nil
}

func (f *fakeRepository) AddRecipeIngredient(_ context.Context, _ Session, link RecipeIngredientLink) (RecipeIngredientLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("AddRecipeIngredient"); err != nil {
		return RecipeIngredientLink{}, err
	}
	f.links = append(f.links, link)
	link.IngredientName = f.ingredientName(link.IngredientID)
	return link, nil
}

func (f *fakeRepository) UpdateRecipeIngredient(_ context.Context, _ Session, recipeID, ingredientID string, patch LinkPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UpdateRecipeIngredient"); err != nil {
		return err
	}
	for index := range f.links {
		link := &f.links[index]
		if link.RecipeID != recipeID || link.IngredientID != ingredientID {
			continue
		}
		if patch.Quantity != nil {
			link.Quantity = *patch.Quantity
		}
		if patch.Unit != nil {
			link.Unit = *patch.Unit
		}
		if patch.Comment != nil {
			link.Comment = *patch.Comment
		}
	}
	return nil
}

func (f *fakeRepository) DeleteRecipeIngredient(_ context.Context, _ Session, recipeID, ingredientID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteRecipeIngredient"); err != nil {
		return err
	}
	kept := f.links[:0]
	for _, link := range f.links {
		if link.RecipeID != recipeID || link.IngredientID != ingredientID {
			kept = append(kept, link)
		}
	}
	f.links = kept
	return nil
}

func (f *fakeRepository) ListRecipeSeasons(_ context.Context, _ Session) ([]RecipeSeasonLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListRecipeSeasons"); err != nil {
		return nil, err
	}
	return append([]RecipeSeasonLink(nil), f.seasons...), nil
}

func (f *fakeRepository) SetRecipeSeasons(_ context.Context, _ Session, recipeID string, seasons []Season) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("SetRecipeSeasons"); err != nil {
		return err
	}
	kept := f.seasons[:0]
	for _, link := range f.seasons {
		if link.RecipeID != recipeID {
			kept = append(kept, link)
		}
	}
	for _, season := range seasons {
		kept = append(kept, RecipeSeasonLink{RecipeID: recipeID, Season: season})
	}
	f.seasons = kept
	return nil
}

func (f *fakeRepository) ListProfilesByIDs(_ context.Context, _ Session, ids []string) ([]Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListProfilesByIDs"); err != nil {
		return nil, err
	}
	var profiles []Profile
	for _, id := range ids {
		if profile, ok := f.profiles[id]; ok {
			profiles = append(profiles, profile)
		}
	}
	return profiles, nil
}

func (f *fakeRepository) GetProfile(_ context.Context, _ Session, userID string) (*Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetProfile"); err != nil {
		return nil, err
	}
	profile, ok := f.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &profile, nil
}

func (f *fakeRepository) CreateProfile(_ context.Context, _ Session, profile Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateProfile"); err != nil {
		return err
	}
	f.profiles[profile.ID] = profile
	return nil
}

func (f *fakeRepository) SetProfileRole(_ context.Context, _ Session, userID string, role Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("SetProfileRole"); err != nil {
		return err
	}
	profile := f.profiles[userID]
	profile.ID = userID
	profile.Role = role
	f.profiles[userID] = profile
	return nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []ChangeNotice
}

func (n *recordingNotifier) NotifyChange(notice ChangeNotice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *recordingNotifier) kinds() []ChangeKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]ChangeKind, len(n.notices))
	for index, notice := range n.notices {
		kinds[index] = notice.Kind
	}
	return kinds
}
