package catalog

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/cases"
)

// MatchMode selects how a chosen set is compared with a recipe's set.
type MatchMode string

const (
	// MatchAny passes a recipe whose set intersects the chosen set.
	MatchAny MatchMode = "any"
	// MatchAll passes a recipe whose set contains every chosen value.
	MatchAll MatchMode = "all"
)

// ParseMatchMode accepts "any" and "all"; blank defaults to any.
func ParseMatchMode(raw string) (MatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(MatchAny):
		return MatchAny, nil
	case string(MatchAll):
		return MatchAll, nil
	default:
		return "", fmt.Errorf("catalog: unknown match mode %q", raw)
	}
}

// SortOrder selects the ordering of filtered results.
type SortOrder string

const (
	SortByName           SortOrder = "name"
	SortByTimeAscending  SortOrder = "time_asc"
	SortByTimeDescending SortOrder = "time_desc"
)

// ParseSortOrder accepts the three supported orders; blank defaults to name.
func ParseSortOrder(raw string) (SortOrder, error) {
	switch SortOrder(strings.ToLower(strings.TrimSpace(raw))) {
	case "", SortByName:
		return SortByName, nil
	case SortByTimeAscending:
		return SortByTimeAscending, nil
	case SortByTimeDescending:
		return SortByTimeDescending, nil
	default:
		return "", fmt.Errorf("catalog: unknown sort order %q", raw)
	}
}

// AnyCreator is the pass-through value of the creator filter.
const AnyCreator = "(any)"

// SetFilter compares a chosen set of values with a per-recipe set.
// An empty Chosen set applies no filter.
type SetFilter[T comparable] struct {
	Chosen []T
	Mode   MatchMode
}

// Active reports whether the filter restricts anything.
func (f SetFilter[T]) Active() bool {
	return len(f.Chosen) > 0
}

// Matches evaluates the filter against one recipe's values.
func (f SetFilter[T]) Matches(values []T) bool {
	if !f.Active() {
		return true
	}
	present := make(map[T]struct{}, len(values))
	for _, value := range values {
		present[value] = struct{}{}
	}
	if f.Mode == MatchAll {
		for _, chosen := range f.Chosen {
			if _, ok := present[chosen]; !ok {
				return false
			}
		}
		return true
	}
	for _, chosen := range f.Chosen {
		if _, ok := present[chosen]; ok {
			return true
		}
	}
	return false
}

// Query is a conjunction of independent per-dimension filters plus a sort order.
type Query struct {
	Seasons     SetFilter[Season]
	Ingredients SetFilter[string]
	Creator     string
	Search      string
	Sort        SortOrder
}

// Apply returns the views passing every active filter, in the requested order.
// The input slice is not modified.
func Apply(views []RecipeView, query Query) []RecipeView {
	creator := strings.TrimSpace(query.Creator)
	if creator == AnyCreator {
		creator = ""
	}
	folder := cases.Fold()
	needle := folder.String(strings.TrimSpace(query.Search))

	result := make([]RecipeView, 0, len(views))
	for _, view := range views {
		if !query.Seasons.Matches(view.Seasons) {
			continue
		}
		if !query.Ingredients.Matches(view.Ingredients) {
			continue
		}
		if creator != "" && view.CreatorName != creator {
			continue
		}
		if needle != "" && !strings.Contains(folder.String(view.Name), needle) {
			continue
		}
		result = append(result, view)
	}

	SortViews(result, query.Sort)
	return result
}

// SortViews orders views in place. Ties keep their relative order.
func SortViews(views []RecipeView, order SortOrder) {
	switch order {
	case SortByTimeAscending:
		slices.SortStableFunc(views, func(a, b RecipeView) int {
			return cmp.Compare(a.TotalMinutes, b.TotalMinutes)
		})
	case SortByTimeDescending:
		slices.SortStableFunc(views, func(a, b RecipeView) int {
			return cmp.Compare(b.TotalMinutes, a.TotalMinutes)
		})
	default:
		slices.SortStableFunc(views, func(a, b RecipeView) int {
			return strings.Compare(a.Name, b.Name)
		})
	}
}

// FacetSet lists the values a browse client can filter on.
type FacetSet struct {
	Seasons     []Season `json:"seasons"`
	Creators    []string `json:"creators"`
	Ingredients []string `json:"ingredients"`
}

// Facets collects the distinct, sorted filter values present in the views.
func Facets(views []RecipeView) FacetSet {
	facets := FacetSet{
		Seasons:     []Season{},
		Creators:    []string{},
		Ingredients: []string{},
	}
	for _, view := range views {
		facets.Seasons = append(facets.Seasons, view.Seasons...)
		facets.Creators = append(facets.Creators, view.CreatorName)
		facets.Ingredients = append(facets.Ingredients, view.Ingredients...)
	}
	slices.Sort(facets.Seasons)
	facets.Seasons = slices.Compact(facets.Seasons)
	slices.Sort(facets.Creators)
	facets.Creators = slices.Compact(facets.Creators)
	slices.Sort(facets.Ingredients)
	facets.Ingredients = slices.Compact(facets.Ingredients)
	return facets
}
