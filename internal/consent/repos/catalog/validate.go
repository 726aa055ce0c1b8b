package catalog

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/haukened/cookiegate/internal/consent/common/pattern"
	"github.com/haukened/cookiegate/internal/consent/common/utils"
	"github.com/haukened/cookiegate/internal/consent/domain"
)

// Severity grades a catalog validation issue.
type Severity uint8

const (
	// SeverityWarning flags a design hazard; the catalog still works.
	SeverityWarning Severity = iota
	// SeverityError flags a preset the catalog cannot be built with.
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Issue is one finding of Validate.
type Issue struct {
	Severity Severity
	PresetID string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.PresetID, i.Message)
}

// NewValidator returns a validator with the "category" tag registered.
func NewValidator() (*validator.Validate, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	err := v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return domain.Category(fl.Field().String()).Valid()
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Validate inspects presets for structural errors and for patterns that make
// classification depend on catalog order or match far more than intended.
func Validate(presets []domain.ServicePreset) []Issue {
	v, err := NewValidator()
	if err != nil {
		return []Issue{{Severity: SeverityError, Message: err.Error()}}
	}

	var issues []Issue
	add := func(sev Severity, id, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, PresetID: id, Message: fmt.Sprintf(format, args...)})
	}

	seenIDs := make(map[string]struct{}, len(presets))
	domainOwner := make(map[string]string)
	cookieOwner := make(map[string]string)

	for _, p := range presets {
		if err := v.Struct(p); err != nil {
			add(SeverityError, p.ID, "invalid preset: %v", err)
		}
		if _, dup := seenIDs[p.ID]; dup {
			add(SeverityError, p.ID, "duplicate preset id")
		}
		seenIDs[p.ID] = struct{}{}

		for _, d := range p.Domains {
			if pattern.IsCatchAll(d) {
				add(SeverityWarning, p.ID, "domain pattern %q matches every host", d)
				continue
			}
			anchor, ok := domainAnchor(d)
			if !ok {
				continue
			}
			if utils.IsPublicSuffix(anchor) {
				add(SeverityWarning, p.ID, "domain pattern %q covers the public suffix %q", d, anchor)
			}
			if owner, taken := domainOwner[anchor]; taken && owner != p.ID {
				add(SeverityWarning, p.ID, "domain %q overlaps preset %q, which wins by catalog order", anchor, owner)
				continue
			}
			domainOwner[anchor] = p.ID
		}

		for _, cp := range p.CookiePatterns {
			if pattern.IsCatchAll(cp) {
				add(SeverityWarning, p.ID, "cookie pattern %q matches every cookie", cp)
				continue
			}
			key := strings.ToLower(cp)
			if owner, taken := cookieOwner[key]; taken && owner != p.ID {
				add(SeverityWarning, p.ID, "cookie pattern %q overlaps preset %q, which wins by catalog order", cp, owner)
				continue
			}
			cookieOwner[key] = p.ID
		}
	}
	return issues
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}
