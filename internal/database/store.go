package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/cuisine/backend/internal/catalog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
)

// StoreConfig describes the dependencies of a Store.
type StoreConfig struct {
	DB         *gorm.DB
	IDProvider IDProvider
	Clock      func() time.Time
}

// Store implements catalog.Repository on a relational database and enforces the same
// row rules a hosted deployment keeps in its policies: every authenticated user reads
// everything, editors create recipes and ingredients, only the creating editor changes
// a recipe with its lines and seasons, and users write only their own profile.
type Store struct {
	db         *gorm.DB
	idProvider IDProvider
	clock      func() time.Time
}

var _ catalog.Repository = (*Store)(nil)

// NewStore validates cfg and returns a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.DB == nil {
		return nil, errMissingDatabase
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Store{db: cfg.DB, idProvider: idProvider, clock: clock}, nil
}

func requireUser(session catalog.Session) error {
	if strings.TrimSpace(session.UserID) == "" {
		return catalog.ErrPermissionDenied
	}
	return nil
}

// requireEditor checks the stored role; the role carried by the session is not trusted.
func requireEditor(tx *gorm.DB, session catalog.Session) error {
	if err := requireUser(session); err != nil {
		return err
	}
	var profile ProfileRecord
	err := tx.Where("id = ?", session.UserID).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return catalog.ErrPermissionDenied
	}
	if err != nil {
		return err
	}
	if catalog.NormalizeRole(profile.Role) != catalog.RoleEditor {
		return catalog.ErrPermissionDenied
	}
	return nil
}

func requireOwnedRecipe(tx *gorm.DB, session catalog.Session, recipeID string) (RecipeRecord, error) {
	if err := requireEditor(tx, session); err != nil {
		return RecipeRecord{}, err
	}
	var recipe RecipeRecord
	err := tx.Where("id = ?", recipeID).Take(&recipe).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return RecipeRecord{}, catalog.ErrNotFound
	}
	if err != nil {
		return RecipeRecord{}, err
	}
	if recipe.CreatedBy != session.UserID {
		return RecipeRecord{}, catalog.ErrPermissionDenied
	}
	return recipe, nil
}

func (s *Store) ListRecipes(ctx context.Context, session catalog.Session) ([]catalog.Recipe, error) {
	if err := requireUser(session); err != nil {
		return nil, err
	}
	var records []RecipeRecord
	if err := s.db.WithContext(ctx).Order("name ASC").Order("id ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return toRecipes(records), nil
}

func (s *Store) ListMyRecipes(ctx context.Context, session catalog.Session) ([]catalog.Recipe, error) {
	if err := requireUser(session); err != nil {
		return nil, err
	}
	var records []RecipeRecord
	if err := s.db.WithContext(ctx).
		Where("created_by = ?", session.UserID).
		Order("created_at_s DESC").
		Order("id DESC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return toRecipes(records), nil
}

func toRecipes(records []RecipeRecord) []catalog.Recipe {
	recipes := make([]catalog.Recipe, len(records))
	for index, record := range records {
		recipes[index] = record.toRecipe()
	}
	return recipes
}

func (s *Store) CreateRecipe(ctx context.Context, session catalog.Session, recipe catalog.NewRecipe) (catalog.Recipe, error) {
	var created RecipeRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireEditor(tx, session); err != nil {
			return err
		}
		if recipe.CreatedBy != session.UserID {
			return catalog.ErrPermissionDenied
		}
		id, err := s.idProvider.NewID()
		if err != nil {
			return err
		}
		servings := recipe.Servings
		if servings < 1 {
			servings = 1
		}
		now := s.clock().UTC().Unix()
		created = RecipeRecord{
			ID:               id,
			Name:             recipe.Name,
			Servings:         servings,
			PrepMinutes:      recipe.PrepMinutes,
			CookMinutes:      recipe.CookMinutes,
			TotalMinutes:     recipe.PrepMinutes + recipe.CookMinutes,
			CreatedBy:        recipe.CreatedBy,
			Instructions:     recipe.Instructions,
			Notes:            recipe.Notes,
			CreatedAtSeconds: now,
			UpdatedAtSeconds: now,
		}
		return tx.Create(&created).Error
	})
	if err != nil {
		return catalog.Recipe{}, err
	}
	return created.toRecipe(), nil
}

func (s *Store) UpdateRecipe(ctx context.Context, session catalog.Session, recipeID string, patch catalog.RecipePatch) (catalog.Recipe, error) {
	var updated RecipeRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := requireOwnedRecipe(tx, session, recipeID)
		if err != nil {
			return err
		}
		columns := patch.Columns()
		prep, cook := existing.PrepMinutes, existing.CookMinutes
		if patch.PrepMinutes != nil {
			prep = *patch.PrepMinutes
		}
		if patch.CookMinutes != nil {
			cook = *patch.CookMinutes
		}
		columns["total_minutes"] = prep + cook
		columns["updated_at_s"] = s.clock().UTC().Unix()
		if err := tx.Model(&RecipeRecord{}).Where("id = ?", recipeID).Updates(columns).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", recipeID).Take(&updated).Error
	})
	if err != nil {
		return catalog.Recipe{}, err
	}
	return updated.toRecipe(), nil
}

// DeleteRecipe removes the recipe together with its ingredient lines and seasons.
func (s *Store) DeleteRecipe(ctx context.Context, session catalog.Session, recipeID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := requireOwnedRecipe(tx, session, recipeID); err != nil {
			return err
		}
		if err := tx.Where("recipe_id = ?", recipeID).Delete(&RecipeIngredientRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("recipe_id = ?", recipeID).Delete(&RecipeSeasonRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", recipeID).Delete(&RecipeRecord{}).Error
	})
}

func (s *Store) ListIngredients(ctx context.Context, session catalog.Session) ([]catalog.Ingredient, error) {
	if err := requireUser(session); err != nil {
		return nil, err
	}
	var records []IngredientRecord
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	ingredients := make([]catalog.Ingredient, len(records))
	for index, record := range records {
		ingredients[index] = catalog.Ingredient{ID: record.ID, Name: record.Name}
	}
	return ingredients, nil
}

func (s *Store) FindIngredientByName(ctx context.Context, session catalog.Session, name string) (*catalog.Ingredient, error) {
	if err := requireUser(session); err != nil {
		return nil, err
	}
	var record IngredientRecord
	err := s.db.WithContext(ctx).Where("name = ?", name).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &catalog.Ingredient{ID: record.ID, Name: record.Name}, nil
}

// CreateIngredient fails with the driver's unique-constraint error when the name exists.
func (s *Store) CreateIngredient(ctx context.Context, session catalog.Session, name string) (catalog.Ingredient, error) {
	var created IngredientRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireEditor(tx, session); err != nil {
			return err
		}
		id, err := s.idProvider.NewID()
		if err != nil {
			return err
		}
		created = IngredientRecord{ID: id, Name: name}
		return tx.Create(&created).Error
	})
	if err != nil {
		return catalog.Ingredient{}, err
	}
	return catalog.Ingredient{ID: created.ID, Name: created.Name}, nil
}

func (s *Store) linkQuery(tx *gorm.DB) *gorm.DB {
	return tx.Table("recipe_ingredients").
		Select("recipe_ingredients.recipe_id, recipe_ingredients.ingredient_id, " +
			"COALESCE(ingredients.name, '') AS ingredient_name, " +
			"recipe_ingredients.quantity, recipe_ingredients.unit, recipe_ingredients.comment").
		Joins("LEFT JOIN ingredients ON ingredients.id = recipe_ingredients.ingredient_id").
		Order("recipe_ingredients.id ASC")
}

func toLinks(rows []linkRow) []catalog.RecipeIngredientLink {
	links := make([]catalog.RecipeIngredientLink, len(rows))
	for index, row := range rows {
		links[index] = row.toLink()
	}
	return links
}

func (s *Store) ListRecipeIngredients(ctx context.Context, session catalog.Session) ([]catalog.RecipeIngredientLink, error) {
	if err := requireUser(session); err != nil {
		return nil, err
	}
	var rows []linkRow
	if err := s.linkQuery(s.db.WithContext(ctx)).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return toLinks(rows), nil
}

func (s *Store) ListIngredientsForRecipe(ctx context.Context, session catalog.Session, recipeID string) ([]catalog.RecipeIngredientLink, error) {
	if err := requireUser(session); err != nil {
		return nil, err
	}
	var rows []linkRow
	if err := s.linkQuery(s.db.WithContext(ctx)).
		Where("recipe_ingredients.recipe_id = ?", recipeID).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return toLinks(rows), nil
}

func (s *Store) AddRecipeIngredient(ctx context.Context, session catalog.Session, link catalog.RecipeIngredientLink) (catalog.RecipeIngredientLink, error) {
	var added catalog.RecipeIngredientLink
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := requireOwnedRecipe(tx, session, link.RecipeID); err != nil {
			return err
		}
		var ingredient IngredientRecord
		err := tx.Where("id = ?", link.IngredientID).Take(&ingredient).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return catalog.ErrNotFound
		}
		if err != nil {
			return err
		}
		id, err := s.idProvider.NewID()
		if err != nil {
			return err
		}
		record := RecipeIngredientRecord{
			ID:           id,
			RecipeID:     link.RecipeID,
			IngredientID: link.IngredientID,
			Quantity:     link.Quantity,
			Unit:         link.Unit,
			Comment:      link.Comment,
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		added = link
		added.IngredientName = ingredient.Name
		return nil
	})
	if err != nil {
		return catalog.RecipeIngredientLink{}, err
	}
	return added, nil
}

// UpdateRecipeIngredient edits every line of the recipe that uses the ingredient.
func (s *Store) UpdateRecipeIngredient(ctx context.Context, session catalog.Session, recipeID, ingredientID string, patch catalog.LinkPatch) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := requireOwnedRecipe(tx, session, recipeID); err != nil {
			return err
		}
		result := tx.Model(&RecipeIngredientRecord{}).
			Where("recipe_id = ? AND ingredient_id = ?", recipeID, ingredientID).
			Updates(patch.Columns())
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return catalog.ErrNotFound
		}
		return nil
	})
}

// DeleteRecipeIngredient removes every line of the recipe that uses the ingredient.
func (s *Store) DeleteRecipeIngredient(ctx context.Context, session catalog.Session, recipeID, ingredientID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := requireOwnedRecipe(tx, session, recipeID); err != nil {
			return err
		}
		return tx.Where("recipe_id = ? AND ingredient_id = ?", recipeID, ingredientID).
			Delete(&RecipeIngredientRecord{}).Error
	})
}

func (s *Store) ListRecipeSeasons(ctx context.Context, session catalog.Session) ([]catalog.RecipeSeasonLink, error) {
	if err := requireUser(session); err != nil {
		return nil, err
	}
	var records []RecipeSeasonRecord
	if err := s.db.WithContext(ctx).Order("recipe_id ASC").Order("season ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	links := make([]catalog.RecipeSeasonLink, len(records))
	for index, record := range records {
		links[index] = catalog.RecipeSeasonLink{RecipeID: record.RecipeID, Season: catalog.Season(record.Season)}
	}
	return links, nil
}

// SetRecipeSeasons replaces the season set in one transaction.
func (s *Store) SetRecipeSeasons(ctx context.Context, session catalog.Session, recipeID string, seasons []catalog.Season) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := requireOwnedRecipe(tx, session, recipeID); err != nil {
			return err
		}
		if err := tx.Where("recipe_id = ?", recipeID).Delete(&RecipeSeasonRecord{}).Error; err != nil {
			return err
		}
		if len(seasons) == 0 {
			return nil
		}
		records := make([]RecipeSeasonRecord, 0, len(seasons))
		for _, season := range seasons {
			records = append(records, RecipeSeasonRecord{RecipeID: recipeID, Season: string(season)})
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&records).Error
	})
}

func (s *Store) ListProfilesByIDs(ctx context.Context, session catalog.Session, ids []string) ([]catalog.Profile, error) {
	if err := requireUser(session); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []catalog.Profile{}, nil
	}
	var records []ProfileRecord
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&records).Error; err != nil {
		return nil, err
	}
	profiles := make([]catalog.Profile, len(records))
	for index, record := range records {
		profiles[index] = record.toProfile()
	}
	return profiles, nil
}

func (s *Store) GetProfile(ctx context.Context, session catalog.Session, userID string) (*catalog.Profile, error) {
	if err := requireUser(session); err != nil {
		return nil, err
	}
	var record ProfileRecord
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	profile := record.toProfile()
	return &profile, nil
}

// CreateProfile inserts the caller's own profile and leaves an existing row untouched.
func (s *Store) CreateProfile(ctx context.Context, session catalog.Session, profile catalog.Profile) error {
	if err := requireUser(session); err != nil {
		return err
	}
	if profile.ID != session.UserID {
		return catalog.ErrPermissionDenied
	}
	record := ProfileRecord{
		ID:        profile.ID,
		FirstName: strings.TrimSpace(profile.FirstName),
		LastName:  strings.TrimSpace(profile.LastName),
		Role:      string(catalog.NormalizeRole(string(profile.Role))),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error
}

// SetProfileRole sets the caller's own role, creating the profile when absent.
func (s *Store) SetProfileRole(ctx context.Context, session catalog.Session, userID string, role catalog.Role) error {
	if err := requireUser(session); err != nil {
		return err
	}
	if userID != session.UserID {
		return catalog.ErrPermissionDenied
	}
	record := ProfileRecord{ID: userID, Role: string(catalog.NormalizeRole(string(role)))}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role"}),
	}).Create(&record).Error
}
