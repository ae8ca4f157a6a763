package catalog

import (
	"regexp"
	"slices"
	"strings"
)

const (
	// UnknownCreator is shown when a recipe creator has no usable profile name.
	UnknownCreator = "Unknown"
	// AllYearLabel is shown when a recipe carries all four seasons.
	AllYearLabel = "All year"
	// NoSeasonLabel is shown when a recipe carries no season at all.
	NoSeasonLabel = "—"
)

// RecipeView is the denormalized projection of a recipe used for filtering and display.
type RecipeView struct {
	Recipe
	CreatorName     string   `json:"creator_name"`
	Ingredients     []string `json:"ingredients"`
	IngredientLines []string `json:"ingredients_lines"`
	IngredientsText string   `json:"ingredients_str"`
	Seasons         []Season `json:"seasons"`
	SeasonsText     string   `json:"seasons_str"`
}

var trailingIDPattern = regexp.MustCompile(`\s*\(([0-9a-fA-F-]{6,})\)\s*$`)

// CleanName strips a trailing " (<id>)" suffix that older rows carry in names.
func CleanName(name string) string {
	return strings.TrimSpace(trailingIDPattern.ReplaceAllString(name, ""))
}

// CreatorName renders "First Last" for a profile, or UnknownCreator.
func CreatorName(profile *Profile) string {
	if profile == nil {
		return UnknownCreator
	}
	full := strings.TrimSpace(strings.TrimSpace(profile.FirstName) + " " + strings.TrimSpace(profile.LastName))
	if full == "" {
		return UnknownCreator
	}
	return full
}

// FormatIngredientLine renders "{qty} {unit} — {name} (comment)", dropping empty parts.
func FormatIngredientLine(link RecipeIngredientLink) string {
	name := CleanName(link.IngredientName)
	amount := make([]string, 0, 2)
	for _, part := range []string{link.Quantity, link.Unit} {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			amount = append(amount, trimmed)
		}
	}
	line := name
	if len(amount) > 0 {
		line = strings.Join(amount, " ") + " — " + name
	}
	if comment := strings.TrimSpace(link.Comment); comment != "" {
		line = line + " (" + comment + ")"
	}
	return strings.TrimSpace(line)
}

// SeasonsLabel renders a sorted season list for display.
func SeasonsLabel(seasons []Season) string {
	if len(seasons) == 0 {
		return NoSeasonLabel
	}
	if len(seasons) == len(canonicalSeasons) {
		return AllYearLabel
	}
	parts := make([]string, len(seasons))
	for index, season := range seasons {
		parts[index] = string(season)
	}
	return strings.Join(parts, ", ")
}

// CreatorIDs returns the distinct, sorted creator ids referenced by the recipes.
func CreatorIDs(recipes []Recipe) []string {
	ids := make([]string, 0, len(recipes))
	for _, recipe := range recipes {
		if recipe.CreatedBy != "" {
			ids = append(ids, recipe.CreatedBy)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// BuildViews joins recipes with their ingredient lines, seasons and creator profiles.
// The recipes slice decides which views exist and their order; links to unknown
// recipes are ignored.
func BuildViews(recipes []Recipe, links []RecipeIngredientLink, seasons []RecipeSeasonLink, profiles []Profile) []RecipeView {
	profilesByID := make(map[string]*Profile, len(profiles))
	for index := range profiles {
		profilesByID[profiles[index].ID] = &profiles[index]
	}

	namesByRecipe := make(map[string][]string)
	linesByRecipe := make(map[string][]string)
	for _, link := range links {
		if name := CleanName(link.IngredientName); name != "" {
			namesByRecipe[link.RecipeID] = append(namesByRecipe[link.RecipeID], name)
		}
		if line := FormatIngredientLine(link); line != "" {
			linesByRecipe[link.RecipeID] = append(linesByRecipe[link.RecipeID], line)
		}
	}

	seasonsByRecipe := make(map[string][]Season)
	for _, link := range seasons {
		if !link.Season.Valid() {
			continue
		}
		seasonsByRecipe[link.RecipeID] = append(seasonsByRecipe[link.RecipeID], link.Season)
	}

	views := make([]RecipeView, 0, len(recipes))
	for _, recipe := range recipes {
		names := append([]string{}, namesByRecipe[recipe.ID]...)
		slices.Sort(names)
		names = slices.Compact(names)

		recipeSeasons := append([]Season{}, seasonsByRecipe[recipe.ID]...)
		slices.Sort(recipeSeasons)
		recipeSeasons = slices.Compact(recipeSeasons)

		view := RecipeView{
			Recipe:          recipe,
			CreatorName:     CreatorName(profilesByID[recipe.CreatedBy]),
			Ingredients:     names,
			IngredientLines: append([]string{}, linesByRecipe[recipe.ID]...),
			IngredientsText: strings.Join(names, ", "),
			Seasons:         recipeSeasons,
			SeasonsText:     SeasonsLabel(recipeSeasons),
		}
		view.Name = CleanName(recipe.Name)
		views = append(views, view)
	}
	return views
}
