package gate

import "github.com/haukened/cookiegate/internal/consent/domain"

// Resolver maps a script host to the catalog service that serves it.
// Both catalog.List and *catalog.Catalog satisfy it.
type Resolver interface {
	ResolveByDomain(hostname string) (domain.DomainMatch, bool)
}

// ConsentFunc reports whether the user has consented to a category.
type ConsentFunc func(domain.Category) bool
