package catalog

import (
	"fmt"
	"strings"
)

// Validate checks a draft before any store call and returns its parsed seasons.
// Every problem is reported, not just the first.
func (d RecipeDraft) Validate() ([]Season, error) {
	var problems []string
	if strings.TrimSpace(d.Name) == "" {
		problems = append(problems, "Recipe name is required.")
	}
	seasons, seasonProblems := parseSeasonList(d.Seasons)
	problems = append(problems, seasonProblems...)
	if d.Servings < 0 {
		problems = append(problems, "Servings must be at least 1.")
	}
	if d.PrepMinutes < 0 {
		problems = append(problems, "Prep time cannot be negative.")
	}
	if d.CookMinutes < 0 {
		problems = append(problems, "Cook time cannot be negative.")
	}
	if len(d.Ingredients) == 0 {
		problems = append(problems, "Add at least one ingredient line.")
	}
	for index, line := range d.Ingredients {
		if strings.TrimSpace(line.IngredientID) == "" && strings.TrimSpace(line.Name) == "" {
			problems = append(problems, fmt.Sprintf("Ingredient line %d needs an ingredient.", index+1))
		}
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return seasons, nil
}

// ParseSeasons validates a replacement season set.
func ParseSeasons(raw []string) ([]Season, error) {
	seasons, problems := parseSeasonList(raw)
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return seasons, nil
}

func parseSeasonList(raw []string) ([]Season, []string) {
	if len(raw) == 0 {
		return nil, []string{"Please select at least one season."}
	}
	var problems []string
	seen := make(map[Season]struct{}, len(raw))
	seasons := make([]Season, 0, len(raw))
	for _, value := range raw {
		season, err := ParseSeason(value)
		if err != nil {
			problems = append(problems, fmt.Sprintf("Unknown season %q.", value))
			continue
		}
		if _, ok := seen[season]; ok {
			continue
		}
		seen[season] = struct{}{}
		seasons = append(seasons, season)
	}
	return seasons, problems
}

func validatePatch(patch RecipePatch) error {
	var problems []string
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		problems = append(problems, "Recipe name is required.")
	}
	if patch.Servings != nil && *patch.Servings < 1 {
		problems = append(problems, "Servings must be at least 1.")
	}
	if patch.PrepMinutes != nil && *patch.PrepMinutes < 0 {
		problems = append(problems, "Prep time cannot be negative.")
	}
	if patch.CookMinutes != nil && *patch.CookMinutes < 0 {
		problems = append(problems, "Cook time cannot be negative.")
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
