package domain

import (
	"fmt"
	"strings"
)

// ServicePreset is a catalog record mapping a third-party service to the
// domains it loads scripts from and the cookies it sets.
//
// Domains are exact host names or "*."-prefixed wildcards. CookiePatterns are
// exact cookie names or patterns with "*" anywhere. Either list may be empty
// for self-hosted or cookie-less services.
type ServicePreset struct {
	ID             string   `koanf:"id" json:"id" validate:"required"`
	Name           string   `koanf:"name" json:"name" validate:"required"`
	Category       Category `koanf:"category" json:"category" validate:"required,category"`
	Domains        []string `koanf:"domains" json:"domains,omitempty" validate:"dive,required"`
	CookiePatterns []string `koanf:"cookies" json:"cookiePatterns,omitempty" validate:"dive,required"`
	Description    string   `koanf:"description" json:"description,omitempty"`
}

// Validate checks the fields that do not need a validator instance.
func (p ServicePreset) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("preset id must not be empty")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("preset %q: name must not be empty", p.ID)
	}
	if !p.Category.Valid() {
		return fmt.Errorf("preset %q: unsupported category %q", p.ID, p.Category)
	}
	for _, d := range p.Domains {
		if strings.TrimSpace(d) == "" {
			return fmt.Errorf("preset %q: empty domain pattern", p.ID)
		}
	}
	for _, c := range p.CookiePatterns {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("preset %q: empty cookie pattern", p.ID)
		}
	}
	return nil
}

// DomainMatch is the outcome of resolving a host against the catalog.
type DomainMatch struct {
	Preset  ServicePreset
	Pattern string // the domain pattern that matched
}

// Category is a convenience accessor for the matched preset's category.
func (m DomainMatch) Category() Category { return m.Preset.Category }

// CookieMatch is the outcome of resolving a cookie name against the catalog.
type CookieMatch struct {
	Preset  ServicePreset
	Pattern string // the cookie pattern that matched
}
