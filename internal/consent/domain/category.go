package domain

import (
	"fmt"
	"strings"
)

// Category is a consent category a service or script belongs to.
type Category string

const (
	CategoryNecessary       Category = "necessary"
	CategoryFunctional      Category = "functional"
	CategoryAnalytics       Category = "analytics"
	CategoryMarketing       Category = "marketing"
	CategoryPersonalization Category = "personalization"
)

// AllCategories lists every category in canonical order. Bulk operations
// iterate in this order so their effects are reproducible.
var AllCategories = []Category{
	CategoryNecessary,
	CategoryFunctional,
	CategoryAnalytics,
	CategoryMarketing,
	CategoryPersonalization,
}

// String returns the category name.
func (c Category) String() string { return string(c) }

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory converts s into a Category (case-insensitive).
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unsupported consent category: %q", s)
	}
	return c, nil
}

// ConsentState maps categories to the user's current decision.
type ConsentState map[Category]bool

// Granted returns the granted categories in canonical order.
func (s ConsentState) Granted() []Category {
	out := make([]Category, 0, len(s))
	for _, c := range AllCategories {
		if s[c] {
			out = append(out, c)
		}
	}
	return out
}

// Allows reports whether category c is granted. It has the shape of a
// consent lookup function.
func (s ConsentState) Allows(c Category) bool { return s[c] }

// ParseConsentState builds a ConsentState from a list of granted category
// names. Necessary is always granted.
func ParseConsentState(granted []string) (ConsentState, error) {
	state := ConsentState{CategoryNecessary: true}
	for _, raw := range granted {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		c, err := ParseCategory(raw)
		if err != nil {
			return nil, err
		}
		state[c] = true
	}
	return state, nil
}
