package catalog

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	opBrowse             = "catalog.browse"
	opMyRecipes          = "catalog.my_recipes"
	opIngredients        = "catalog.ingredients"
	opRecipeIngredients  = "catalog.recipe_ingredients"
	opResolveSession     = "catalog.resolve_session"
	opResolveRole        = "catalog.resolve_role"
	opEnsureProfile      = "catalog.ensure_profile"
	opUpgradeToEditor    = "catalog.upgrade_to_editor"
	opCreateRecipe       = "catalog.create_recipe"
	opUpdateRecipe       = "catalog.update_recipe"
	opDeleteRecipe       = "catalog.delete_recipe"
	opSetRecipeSeasons   = "catalog.set_recipe_seasons"
	opAddIngredient      = "catalog.add_recipe_ingredient"
	opUpdateIngredient   = "catalog.update_recipe_ingredient"
	opDeleteIngredient   = "catalog.delete_recipe_ingredient"
	opServiceNew         = "catalog.service.new"
	reasonInvalidRequest = "invalid_request"
)

var noOpLogger = zap.NewNop()

// ChangeKind names the mutation behind a ChangeNotice.
type ChangeKind string

const (
	ChangeRecipeCreated     ChangeKind = "recipe_created"
	ChangeRecipeUpdated     ChangeKind = "recipe_updated"
	ChangeRecipeDeleted     ChangeKind = "recipe_deleted"
	ChangeSeasonsReplaced   ChangeKind = "seasons_replaced"
	ChangeIngredientsEdited ChangeKind = "ingredients_edited"
	ChangeRoleUpdated       ChangeKind = "role_updated"
)

// ChangeNotice describes a committed catalog mutation.
type ChangeNotice struct {
	Kind     ChangeKind `json:"kind"`
	RecipeID string     `json:"recipe_id,omitempty"`
	UserID   string     `json:"user_id"`
	At       time.Time  `json:"at"`
}

// ChangeNotifier receives a notice after every committed mutation.
type ChangeNotifier interface {
	NotifyChange(notice ChangeNotice)
}

// ServiceConfig describes the dependencies of the catalog service.
type ServiceConfig struct {
	Repository Repository
	Notifier   ChangeNotifier
	InviteCode string
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service composes store reads into recipe views and runs validated mutations.
type Service struct {
	repository Repository
	notifier   ChangeNotifier
	inviteCode string
	clock      func() time.Time
	logger     *zap.Logger
}

// NewService validates the configuration and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repository == nil {
		return nil, newServiceError(opServiceNew, "missing_repository", errMissingRepository)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		repository: cfg.Repository,
		notifier:   cfg.Notifier,
		inviteCode: strings.TrimSpace(cfg.InviteCode),
		clock:      clock,
		logger:     logger,
	}, nil
}

// BrowseResult is the filtered catalog together with the filter options of the whole catalog.
type BrowseResult struct {
	Recipes []RecipeView `json:"recipes"`
	Total   int          `json:"total"`
	Facets  FacetSet     `json:"facets"`
}

// Browse loads the catalog visible to the session, builds views and applies the query.
func (s *Service) Browse(ctx context.Context, session Session, query Query) (BrowseResult, error) {
	recipes, err := s.repository.ListRecipes(ctx, session)
	if err != nil {
		return BrowseResult{}, s.storeFailure(opBrowse, "list_recipes", err)
	}
	views, err := s.buildViews(ctx, session, opBrowse, recipes)
	if err != nil {
		return BrowseResult{}, err
	}
	filtered := Apply(views, query)
	return BrowseResult{
		Recipes: filtered,
		Total:   len(views),
		Facets:  Facets(views),
	}, nil
}

// MyStats summarizes the recipes created by the caller.
type MyStats struct {
	Count               int `json:"count"`
	AverageTotalMinutes int `json:"average_total_minutes"`
}

// MySpace is the caller's own recipes, newest first, with summary stats.
type MySpace struct {
	Recipes []RecipeView `json:"recipes"`
	Stats   MyStats      `json:"stats"`
}

// MyRecipes loads the recipes created by the session user.
func (s *Service) MyRecipes(ctx context.Context, session Session) (MySpace, error) {
	recipes, err := s.repository.ListMyRecipes(ctx, session)
	if err != nil {
		return MySpace{}, s.storeFailure(opMyRecipes, "list_my_recipes", err)
	}
	views, err := s.buildViews(ctx, session, opMyRecipes, recipes)
	if err != nil {
		return MySpace{}, err
	}
	return MySpace{Recipes: views, Stats: summarize(recipes)}, nil
}

func summarize(recipes []Recipe) MyStats {
	stats := MyStats{Count: len(recipes)}
	if len(recipes) == 0 {
		return stats
	}
	total := 0
	for _, recipe := range recipes {
		total += recipe.TotalMinutes
	}
	stats.AverageTotalMinutes = total / len(recipes)
	return stats
}

func (s *Service) buildViews(ctx context.Context, session Session, operation string, recipes []Recipe) ([]RecipeView, error) {
	if len(recipes) == 0 {
		return []RecipeView{}, nil
	}
	links, err := s.repository.ListRecipeIngredients(ctx, session)
	if err != nil {
		return nil, s.storeFailure(operation, "list_recipe_ingredients", err)
	}
	seasons, err := s.repository.ListRecipeSeasons(ctx, session)
	if err != nil {
		return nil, s.storeFailure(operation, "list_recipe_seasons", err)
	}
	profiles, err := s.repository.ListProfilesByIDs(ctx, session, CreatorIDs(recipes))
	if err != nil {
		return nil, s.storeFailure(operation, "list_profiles", err)
	}
	return BuildViews(recipes, links, seasons, profiles), nil
}

// Ingredients lists every ingredient ordered by name.
func (s *Service) Ingredients(ctx context.Context, session Session) ([]Ingredient, error) {
	ingredients, err := s.repository.ListIngredients(ctx, session)
	if err != nil {
		return nil, s.storeFailure(opIngredients, "list_ingredients", err)
	}
	return ingredients, nil
}

// RecipeIngredients lists the ingredient lines of one recipe.
func (s *Service) RecipeIngredients(ctx context.Context, session Session, recipeID string) ([]RecipeIngredientLink, error) {
	recipeID = strings.TrimSpace(recipeID)
	if recipeID == "" {
		return nil, newServiceError(opRecipeIngredients, reasonInvalidRequest, errMissingRecipeID)
	}
	links, err := s.repository.ListIngredientsForRecipe(ctx, session, recipeID)
	if err != nil {
		return nil, s.storeFailure(opRecipeIngredients, "list_ingredients_for_recipe", err)
	}
	return links, nil
}

// ResolveRole reads the caller's role from their profile. A missing profile is a reader.
func (s *Service) ResolveRole(ctx context.Context, session Session) (Role, error) {
	profile, err := s.loadProfile(ctx, session, opResolveRole)
	if err != nil {
		return RoleReader, err
	}
	if profile == nil {
		return RoleReader, nil
	}
	return NormalizeRole(string(profile.Role)), nil
}

// EnsureProfile creates a reader profile for the caller when none exists yet.
func (s *Service) EnsureProfile(ctx context.Context, session Session) error {
	profile, err := s.loadProfile(ctx, session, opEnsureProfile)
	if err != nil || profile != nil {
		return err
	}
	if err := s.repository.CreateProfile(ctx, session, Profile{ID: session.UserID, Role: RoleReader}); err != nil {
		return s.storeFailure(opEnsureProfile, "create_profile", err)
	}
	return nil
}

// ResolveSession fills the session role from the caller's profile, creating a reader
// profile on first sight.
func (s *Service) ResolveSession(ctx context.Context, session Session) (Session, error) {
	profile, err := s.loadProfile(ctx, session, opResolveSession)
	if err != nil {
		return Session{}, err
	}
	if profile == nil {
		if err := s.repository.CreateProfile(ctx, session, Profile{ID: session.UserID, Role: RoleReader}); err != nil {
			return Session{}, s.storeFailure(opResolveSession, "create_profile", err)
		}
		session.Role = RoleReader
		return session, nil
	}
	session.Role = NormalizeRole(string(profile.Role))
	return session, nil
}

func (s *Service) loadProfile(ctx context.Context, session Session, operation string) (*Profile, error) {
	if strings.TrimSpace(session.UserID) == "" {
		return nil, newServiceError(operation, reasonInvalidRequest, errMissingSession)
	}
	profile, err := s.repository.GetProfile(ctx, session, session.UserID)
	if err != nil {
		return nil, s.storeFailure(operation, "get_profile", err)
	}
	return profile, nil
}

// UpgradeToEditor grants the editor role when code matches the configured invite code.
func (s *Service) UpgradeToEditor(ctx context.Context, session Session, code string) (Session, error) {
	if s.inviteCode == "" {
		return session, ErrInviteCodeNotConfigured
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(code)), []byte(s.inviteCode)) != 1 {
		return session, ErrInviteCodeMismatch
	}
	if session.IsEditor() {
		return session, nil
	}
	if err := s.repository.SetProfileRole(ctx, session, session.UserID, RoleEditor); err != nil {
		return session, s.storeFailure(opUpgradeToEditor, "set_profile_role", err)
	}
	session.Role = RoleEditor
	s.notify(ChangeRoleUpdated, "", session)
	return session, nil
}

// StepStatus is the outcome of one step of a multi-step mutation.
type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

const (
	stepCreateRecipe   = "create_recipe"
	stepSetSeasons     = "set_seasons"
	stepLinkIngredient = "link_ingredient"
)

// CreationStep records one step of a recipe creation.
type CreationStep struct {
	Name   string     `json:"name"`
	Target string     `json:"target,omitempty"`
	Status StepStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
}

// CreationReport accounts for every step of a recipe creation so a partial result can
// be finished by hand.
type CreationReport struct {
	Recipe *Recipe        `json:"recipe,omitempty"`
	Steps  []CreationStep `json:"steps"`
}

// Complete reports whether every step succeeded.
func (r CreationReport) Complete() bool {
	for _, step := range r.Steps {
		if step.Status != StepCompleted {
			return false
		}
	}
	return len(r.Steps) > 0
}

// FailedStep returns the step that stopped the sequence, if any.
func (r CreationReport) FailedStep() *CreationStep {
	for index := range r.Steps {
		if r.Steps[index].Status == StepFailed {
			return &r.Steps[index]
		}
	}
	return nil
}

func planCreation(draft RecipeDraft) CreationReport {
	steps := make([]CreationStep, 0, len(draft.Ingredients)+2)
	steps = append(steps,
		CreationStep{Name: stepCreateRecipe, Target: strings.TrimSpace(draft.Name), Status: StepSkipped},
		CreationStep{Name: stepSetSeasons, Status: StepSkipped},
	)
	for _, line := range draft.Ingredients {
		target := strings.TrimSpace(line.Name)
		if target == "" {
			target = strings.TrimSpace(line.IngredientID)
		}
		steps = append(steps, CreationStep{Name: stepLinkIngredient, Target: target, Status: StepSkipped})
	}
	return CreationReport{Steps: steps}
}

// CreateRecipe validates the draft, then creates the recipe, sets its seasons and links
// each ingredient line in order. The sequence stops at the first failure and nothing
// is rolled back; the returned report tells which steps were applied.
func (s *Service) CreateRecipe(ctx context.Context, session Session, draft RecipeDraft) (CreationReport, error) {
	if !session.IsEditor() {
		return CreationReport{}, ErrEditorRoleRequired
	}
	seasons, err := draft.Validate()
	if err != nil {
		return CreationReport{}, err
	}

	report := planCreation(draft)
	fail := func(index int, cause error) (CreationReport, error) {
		report.Steps[index].Status = StepFailed
		report.Steps[index].Error = cause.Error()
		if report.Recipe == nil {
			return report, s.storeFailure(opCreateRecipe, report.Steps[index].Name, cause)
		}
		s.logError(opCreateRecipe, report.Steps[index].Name, cause,
			zap.String("user_id", session.UserID),
			zap.String("recipe_id", report.Recipe.ID),
			zap.String("target", report.Steps[index].Target))
		s.notify(ChangeRecipeCreated, report.Recipe.ID, session)
		return report, &PartialFailureError{Report: report, Cause: cause}
	}

	servings := draft.Servings
	if servings == 0 {
		servings = 1
	}
	recipe, err := s.repository.CreateRecipe(ctx, session, NewRecipe{
		Name:         strings.TrimSpace(draft.Name),
		Servings:     servings,
		PrepMinutes:  draft.PrepMinutes,
		CookMinutes:  draft.CookMinutes,
		Instructions: strings.TrimSpace(draft.Instructions),
		Notes:        strings.TrimSpace(draft.Notes),
		CreatedBy:    session.UserID,
	})
	if err == nil && recipe.ID == "" {
		err = errNoRecipeID
	}
	if err != nil {
		return fail(0, err)
	}
	report.Recipe = &recipe
	report.Steps[0].Status = StepCompleted

	if err := s.repository.SetRecipeSeasons(ctx, session, recipe.ID, seasons); err != nil {
		return fail(1, err)
	}
	report.Steps[1].Status = StepCompleted

	known, err := s.ingredientIndex(ctx, session)
	if err != nil {
		return fail(2, err)
	}
	for index, line := range draft.Ingredients {
		stepIndex := index + 2
		ingredientID, err := s.resolveIngredient(ctx, session, line, known)
		if err != nil {
			return fail(stepIndex, err)
		}
		if _, err := s.repository.AddRecipeIngredient(ctx, session, RecipeIngredientLink{
			RecipeID:     recipe.ID,
			IngredientID: ingredientID,
			Quantity:     strings.TrimSpace(line.Quantity),
			Unit:         strings.TrimSpace(line.Unit),
			Comment:      strings.TrimSpace(line.Comment),
		}); err != nil {
			return fail(stepIndex, err)
		}
		report.Steps[stepIndex].Status = StepCompleted
	}

	s.notify(ChangeRecipeCreated, recipe.ID, session)
	return report, nil
}

func (s *Service) ingredientIndex(ctx context.Context, session Session) (map[string]string, error) {
	ingredients, err := s.repository.ListIngredients(ctx, session)
	if err != nil {
		return nil, err
	}
	index := make(map[string]string, len(ingredients))
	for _, ingredient := range ingredients {
		index[ingredient.Name] = ingredient.ID
	}
	return index, nil
}

// resolveIngredient returns the id of the line's ingredient, creating it when no
// ingredient has that exact name. A failed create falls back to a lookup, since a
// concurrent writer may have inserted the same name.
func (s *Service) resolveIngredient(ctx context.Context, session Session, line IngredientLine, known map[string]string) (string, error) {
	if id := strings.TrimSpace(line.IngredientID); id != "" {
		return id, nil
	}
	name := strings.TrimSpace(line.Name)
	if name == "" {
		return "", errMissingIngredient
	}
	if id, ok := known[name]; ok {
		return id, nil
	}
	created, createErr := s.repository.CreateIngredient(ctx, session, name)
	if createErr == nil && created.ID != "" {
		known[name] = created.ID
		return created.ID, nil
	}
	existing, err := s.repository.FindIngredientByName(ctx, session, name)
	if err != nil {
		return "", err
	}
	if existing == nil || existing.ID == "" {
		if createErr == nil {
			createErr = ErrNotFound
		}
		return "", createErr
	}
	known[name] = existing.ID
	return existing.ID, nil
}

// UpdateRecipe applies the allow-listed fields of patch.
func (s *Service) UpdateRecipe(ctx context.Context, session Session, recipeID string, patch RecipePatch) (Recipe, error) {
	if !session.IsEditor() {
		return Recipe{}, ErrEditorRoleRequired
	}
	recipeID = strings.TrimSpace(recipeID)
	if recipeID == "" {
		return Recipe{}, newServiceError(opUpdateRecipe, reasonInvalidRequest, errMissingRecipeID)
	}
	if len(patch.Columns()) == 0 {
		return Recipe{}, newServiceError(opUpdateRecipe, reasonInvalidRequest, errEmptyPatch)
	}
	if err := validatePatch(patch); err != nil {
		return Recipe{}, err
	}
	recipe, err := s.repository.UpdateRecipe(ctx, session, recipeID, patch)
	if err != nil {
		return Recipe{}, s.storeFailure(opUpdateRecipe, "update_recipe", err)
	}
	s.notify(ChangeRecipeUpdated, recipeID, session)
	return recipe, nil
}

// DeleteRecipe removes a recipe; its links go with it.
func (s *Service) DeleteRecipe(ctx context.Context, session Session, recipeID string) error {
	if !session.IsEditor() {
		return ErrEditorRoleRequired
	}
	recipeID = strings.TrimSpace(recipeID)
	if recipeID == "" {
		return newServiceError(opDeleteRecipe, reasonInvalidRequest, errMissingRecipeID)
	}
	if err := s.repository.DeleteRecipe(ctx, session, recipeID); err != nil {
		return s.storeFailure(opDeleteRecipe, "delete_recipe", err)
	}
	s.notify(ChangeRecipeDeleted, recipeID, session)
	return nil
}

// SetRecipeSeasons replaces the whole season set of a recipe.
func (s *Service) SetRecipeSeasons(ctx context.Context, session Session, recipeID string, raw []string) ([]Season, error) {
	if !session.IsEditor() {
		return nil, ErrEditorRoleRequired
	}
	recipeID = strings.TrimSpace(recipeID)
	if recipeID == "" {
		return nil, newServiceError(opSetRecipeSeasons, reasonInvalidRequest, errMissingRecipeID)
	}
	seasons, err := ParseSeasons(raw)
	if err != nil {
		return nil, err
	}
	if err := s.repository.SetRecipeSeasons(ctx, session, recipeID, seasons); err != nil {
		return nil, s.storeFailure(opSetRecipeSeasons, "set_recipe_seasons", err)
	}
	s.notify(ChangeSeasonsReplaced, recipeID, session)
	return seasons, nil
}

// AddRecipeIngredient links an existing or new ingredient to a recipe.
func (s *Service) AddRecipeIngredient(ctx context.Context, session Session, recipeID string, line IngredientLine) (RecipeIngredientLink, error) {
	if !session.IsEditor() {
		return RecipeIngredientLink{}, ErrEditorRoleRequired
	}
	recipeID = strings.TrimSpace(recipeID)
	if recipeID == "" {
		return RecipeIngredientLink{}, newServiceError(opAddIngredient, reasonInvalidRequest, errMissingRecipeID)
	}
	if strings.TrimSpace(line.IngredientID) == "" && strings.TrimSpace(line.Name) == "" {
		return RecipeIngredientLink{}, &ValidationError{Problems: []string{"Please select or name an ingredient."}}
	}
	known, err := s.ingredientIndex(ctx, session)
	if err != nil {
		return RecipeIngredientLink{}, s.storeFailure(opAddIngredient, "list_ingredients", err)
	}
	ingredientID, err := s.resolveIngredient(ctx, session, line, known)
	if err != nil {
		return RecipeIngredientLink{}, s.storeFailure(opAddIngredient, "resolve_ingredient", err)
	}
	link, err := s.repository.AddRecipeIngredient(ctx, session, RecipeIngredientLink{
		RecipeID:     recipeID,
		IngredientID: ingredientID,
		Quantity:     strings.TrimSpace(line.Quantity),
		Unit:         strings.TrimSpace(line.Unit),
		Comment:      strings.TrimSpace(line.Comment),
	})
	if err != nil {
		return RecipeIngredientLink{}, s.storeFailure(opAddIngredient, "add_recipe_ingredient", err)
	}
	s.notify(ChangeIngredientsEdited, recipeID, session)
	return link, nil
}

// UpdateRecipeIngredient edits quantity, unit or comment of the recipe's lines for an ingredient.
func (s *Service) UpdateRecipeIngredient(ctx context.Context, session Session, recipeID, ingredientID string, patch LinkPatch) error {
	if !session.IsEditor() {
		return ErrEditorRoleRequired
	}
	recipeID, ingredientID = strings.TrimSpace(recipeID), strings.TrimSpace(ingredientID)
	if recipeID == "" || ingredientID == "" {
		return newServiceError(opUpdateIngredient, reasonInvalidRequest, errMissingIngredient)
	}
	if len(patch.Columns()) == 0 {
		return newServiceError(opUpdateIngredient, reasonInvalidRequest, errEmptyPatch)
	}
	if err := s.repository.UpdateRecipeIngredient(ctx, session, recipeID, ingredientID, patch); err != nil {
		return s.storeFailure(opUpdateIngredient, "update_recipe_ingredient", err)
	}
	s.notify(ChangeIngredientsEdited, recipeID, session)
	return nil
}

// DeleteRecipeIngredient removes the recipe's lines for an ingredient.
func (s *Service) DeleteRecipeIngredient(ctx context.Context, session Session, recipeID, ingredientID string) error {
	if !session.IsEditor() {
		return ErrEditorRoleRequired
	}
	recipeID, ingredientID = strings.TrimSpace(recipeID), strings.TrimSpace(ingredientID)
	if recipeID == "" || ingredientID == "" {
		return newServiceError(opDeleteIngredient, reasonInvalidRequest, errMissingIngredient)
	}
	if err := s.repository.DeleteRecipeIngredient(ctx, session, recipeID, ingredientID); err != nil {
		return s.storeFailure(opDeleteIngredient, "delete_recipe_ingredient", err)
	}
	s.notify(ChangeIngredientsEdited, recipeID, session)
	return nil
}

func (s *Service) notify(kind ChangeKind, recipeID string, session Session) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyChange(ChangeNotice{
		Kind:     kind,
		RecipeID: recipeID,
		UserID:   session.UserID,
		At:       s.clock().UTC(),
	})
}

func (s *Service) storeFailure(operation, reason string, err error) error {
	var validation *ValidationError
	if errors.As(err, &validation) {
		return err
	}
	s.logError(operation, reason, err)
	return newServiceError(operation, reason, err)
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("catalog service error", attrs...)
}
