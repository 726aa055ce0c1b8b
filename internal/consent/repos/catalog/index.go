package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/haukened/cookiegate/internal/consent/common/log"
	"github.com/haukened/cookiegate/internal/consent/common/pattern"
	"github.com/haukened/cookiegate/internal/consent/common/utils"
	"github.com/haukened/cookiegate/internal/consent/domain"
)

var (
	ErrDuplicatePresetID = errors.New("duplicate preset id")
	ErrInvalidPreset     = errors.New("invalid preset")
)

// Options configures an indexed Catalog.
type Options struct {
	// CacheSize bounds the host and cookie lookup caches. <= 0 disables them.
	CacheSize int
	// FPRate is the target false-positive rate of the domain anchor filter.
	FPRate float64
	Logger log.Logger
}

// Catalog is an immutable, indexed preset catalog. It answers the same
// questions as List with the same first-match outcome, using a Bloom filter
// of domain anchors to reject unrelated hosts early and LRU caches for
// repeated hosts and cookie names.
type Catalog struct {
	presets []domain.ServicePreset
	byID    map[string]int
	anchors *anchorFilter // nil when some domain pattern cannot be anchored
	hosts   *resultCache[domain.DomainMatch]
	cookies *resultCache[domain.CookieMatch]
	logger  log.Logger
}

// New builds a Catalog from presets in the given order. Presets that fail
// validation or reuse an id are rejected.
func New(presets []domain.ServicePreset, opts Options) (*Catalog, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	logger = log.Component(logger, "catalog")
	c := &Catalog{
		presets: make([]domain.ServicePreset, len(presets)),
		byID:    make(map[string]int, len(presets)),
		logger:  logger,
	}
	copy(c.presets, presets)

	var anchors []string
	anchorable := true
	for i, p := range c.presets {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPreset, err)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicatePresetID, p.ID)
		}
		c.byID[p.ID] = i
		for _, d := range p.Domains {
			a, ok := domainAnchor(d)
			if !ok {
				anchorable = false
				continue
			}
			anchors = append(anchors, a)
		}
	}
	if anchorable {
		c.anchors = newAnchorFilter(anchors, opts.FPRate)
	}

	var err error
	if c.hosts, err = newResultCache[domain.DomainMatch](opts.CacheSize); err != nil {
		return nil, fmt.Errorf("failed to create host cache: %w", err)
	}
	if c.cookies, err = newResultCache[domain.CookieMatch](opts.CacheSize); err != nil {
		return nil, fmt.Errorf("failed to create cookie cache: %w", err)
	}

	logger.Debug(map[string]any{
		"presets":    len(c.presets),
		"anchors":    len(anchors),
		"anchored":   anchorable,
		"cache_size": opts.CacheSize,
	}, "catalog_built")
	return c, nil
}

// domainAnchor returns the suffix a domain pattern is anchored on: the
// pattern itself when literal, the base of a "*." pattern otherwise. Any
// other wildcard placement cannot be anchored.
func domainAnchor(d string) (string, bool) {
	d = utils.CanonicalHostName(d)
	if !pattern.HasWildcard(d) {
		return d, d != ""
	}
	base, ok := strings.CutPrefix(d, "*.")
	if !ok || base == "" || pattern.HasWildcard(base) {
		return "", false
	}
	return base, true
}

// Len returns the number of presets.
func (c *Catalog) Len() int { return len(c.presets) }

// Presets returns a copy of the presets in catalog order.
func (c *Catalog) Presets() []domain.ServicePreset {
	out := make([]domain.ServicePreset, len(c.presets))
	copy(out, c.presets)
	return out
}

// ByID looks up a preset by id.
func (c *Catalog) ByID(id string) (domain.ServicePreset, bool) {
	i, ok := c.byID[id]
	if !ok {
		return domain.ServicePreset{}, false
	}
	return c.presets[i], true
}

// Subset returns the presets with the given ids, in the order requested.
// Unknown ids are returned separately.
func (c *Catalog) Subset(ids []string) (found []domain.ServicePreset, missing []string) {
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if p, ok := c.ByID(id); ok {
			found = append(found, p)
		} else {
			missing = append(missing, id)
		}
	}
	return found, missing
}

// ResolveByDomain returns the first preset whose domain patterns match hostname.
func (c *Catalog) ResolveByDomain(hostname string) (domain.DomainMatch, bool) {
	host := utils.CanonicalHostName(hostname)
	if host == "" {
		return domain.DomainMatch{}, false
	}
	if c.anchors != nil && !c.anchors.mightMatch(host) {
		return domain.DomainMatch{}, false
	}
	if hit, ok := c.hosts.get(host); ok {
		return hit.match, hit.ok
	}
	m, ok := ResolveByDomain(host, c.presets)
	c.hosts.put(host, lookup[domain.DomainMatch]{match: m, ok: ok})
	return m, ok
}

// ResolveByURL resolves the host of rawURL, failing closed on bad input.
func (c *Catalog) ResolveByURL(rawURL string) (domain.DomainMatch, bool) {
	host, ok := utils.HostnameFromURL(rawURL)
	if !ok {
		c.logger.Debug(map[string]any{"url": rawURL}, "catalog_unparseable_url")
		return domain.DomainMatch{}, false
	}
	return c.ResolveByDomain(host)
}

// ResolveByCookie returns the first preset whose cookie patterns match name.
func (c *Catalog) ResolveByCookie(name string) (domain.CookieMatch, bool) {
	if hit, ok := c.cookies.get(name); ok {
		return hit.match, hit.ok
	}
	m, ok := ResolveByCookie(name, c.presets)
	c.cookies.put(name, lookup[domain.CookieMatch]{match: m, ok: ok})
	return m, ok
}

// Stats returns the host and cookie cache counters.
func (c *Catalog) Stats() (hosts, cookies CacheStats) {
	return c.hosts.stats(), c.cookies.stats()
}
