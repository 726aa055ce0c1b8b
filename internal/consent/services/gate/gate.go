// Package gate holds third-party scripts back until their consent category
// is granted, and releases them again on request.
//
// A script moves from unclassified to allowed or blocked. Blocked scripts
// can be unblocked once, after which their record stays in the registry as
// a tombstone so that repeated unblocks are no-ops.
package gate

import (
	"errors"
	"strings"
	"sync"

	"github.com/haukened/cookiegate/internal/consent/common/log"
	"github.com/haukened/cookiegate/internal/consent/common/utils"
	"github.com/haukened/cookiegate/internal/consent/domain"
	"github.com/haukened/cookiegate/internal/consent/gateways/document"
)

// Attributes carrying gate state at the document boundary.
const (
	InertType     = "text/plain"
	AttrCategory  = "data-consent-category"
	AttrSource    = "data-consent-source"
	AttrServiceID = "data-service-id"
	AttrLoaded    = "data-consent-loaded"
)

var (
	ErrLoadFailed           = errors.New("script load failed")
	ErrNotBlocked           = errors.New("script is not blocked")
	ErrUnblockInProgress    = errors.New("script unblock already in progress")
	ErrInterceptorInstalled = errors.New("script interceptor already installed")
	ErrNoConsentFunc        = errors.New("consent function is required")
	ErrNoInsertionPoint     = errors.New("document has no head to insert into")
)

type entry struct {
	res      domain.BlockedResource
	inflight bool
}

// Gate blocks and unblocks scripts of one document.
type Gate struct {
	doc      *document.Document
	resolver Resolver
	logger   log.Logger

	mu          sync.Mutex
	records     map[domain.ResourceID]*entry
	interceptor *interceptor
}

// Options configures a Gate. A nil Document gives a gate whose operations
// all return empty results.
type Options struct {
	Document *document.Document
	Resolver Resolver
	Logger   log.Logger
}

// New creates a Gate.
func New(opts Options) *Gate {
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger()
	}
	logger = log.Component(logger, "gate")
	return &Gate{
		doc:      opts.Document,
		resolver: opts.Resolver,
		logger:   logger,
		records:  make(map[domain.ResourceID]*entry),
	}
}

// Document returns the gated document, which may be nil.
func (g *Gate) Document() *document.Document { return g.doc }

// Classify resolves a script URL against the catalog. URLs that cannot be
// parsed, or whose host matches no service, come back unclassified and are
// therefore allowed.
func (g *Gate) Classify(rawURL string) domain.ScriptClass {
	host, ok := utils.HostnameFromURL(rawURL)
	if !ok {
		g.logger.Debug(map[string]any{"url": rawURL}, "script_url_unparseable")
		return domain.ScriptClass{}
	}
	class := domain.ScriptClass{Host: host}
	if g.resolver == nil {
		return class
	}
	m, ok := g.resolver.ResolveByDomain(host)
	if !ok {
		return class
	}
	class.Category = m.Category()
	class.ServiceID = m.Preset.ID
	return class
}

// IsBlocked reports whether el is a script held back by the gate: an inert
// type plus a category attribute, and not yet unblocked.
func (g *Gate) IsBlocked(el *document.Element) bool {
	if el == nil {
		return false
	}
	g.mu.Lock()
	e, ok := g.records[el.ID()]
	loaded := ok && e.res.Loaded
	g.mu.Unlock()
	if loaded {
		return false
	}
	return isBlockedMarkup(el)
}

// Resource returns the blocked-resource record for el, adopting statically
// blocked markup into the registry on first sight.
func (g *Gate) Resource(el *document.Element) (domain.BlockedResource, bool) {
	e, ok := g.lookup(el)
	if !ok {
		return domain.BlockedResource{}, false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return e.res, true
}

// BlockedScripts returns every blocked script in document order.
func (g *Gate) BlockedScripts() []*document.Element {
	return g.blocked(func(domain.BlockedResource) bool { return true })
}

// BlockedScriptsByCategory returns the blocked scripts of one category in
// document order.
func (g *Gate) BlockedScriptsByCategory(cat domain.Category) []*document.Element {
	return g.blocked(func(r domain.BlockedResource) bool { return r.Category == cat })
}

func (g *Gate) blocked(keep func(domain.BlockedResource) bool) []*document.Element {
	if g.doc == nil {
		return nil
	}
	var out []*document.Element
	for _, el := range g.doc.Scripts() {
		if !g.IsBlocked(el) {
			continue
		}
		res, ok := g.Resource(el)
		if ok && keep(res) {
			out = append(out, el)
		}
	}
	return out
}

// LoadedScriptsByCategory returns the unblocked scripts of a category that
// are still in the document.
func (g *Gate) LoadedScriptsByCategory(cat domain.Category) []*document.Element {
	if g.doc == nil {
		return nil
	}
	var out []*document.Element
	for _, el := range g.doc.Scripts() {
		if el.Attr(AttrLoaded) == "true" && domain.Category(el.Attr(AttrCategory)) == cat {
			out = append(out, el)
		}
	}
	return out
}

// RemoveByCategory removes the unblocked scripts of a category from the
// document and returns how many were removed. Blocked scripts stay.
func (g *Gate) RemoveByCategory(cat domain.Category) int {
	loaded := g.LoadedScriptsByCategory(cat)
	for _, el := range loaded {
		el.Remove()
	}
	if len(loaded) > 0 {
		g.logger.Info(map[string]any{"category": cat, "count": len(loaded)}, "scripts_removed")
	}
	return len(loaded)
}

// lookup returns the registry entry for el, creating one from its
// attributes when el is blocked markup the gate has not seen yet.
func (g *Gate) lookup(el *document.Element) (*entry, bool) {
	if el == nil {
		return nil, false
	}
	g.mu.Lock()
	e, ok := g.records[el.ID()]
	g.mu.Unlock()
	if ok {
		return e, true
	}
	if !isBlockedMarkup(el) {
		return nil, false
	}

	res := domain.BlockedResource{
		ID:        el.ID(),
		Category:  domain.Category(strings.ToLower(strings.TrimSpace(el.Attr(AttrCategory)))),
		Source:    el.Attr(AttrSource),
		ServiceID: el.Attr(AttrServiceID),
	}
	if res.Source == "" {
		res.Source = el.Src()
	}
	if res.Source == "" {
		res.InlineContent = el.Text()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.records[el.ID()]; ok {
		return e, true
	}
	e = &entry{res: res}
	g.records[el.ID()] = e
	return e, true
}

// register records a script the gate has just blocked.
func (g *Gate) register(res domain.BlockedResource) {
	g.mu.Lock()
	g.records[res.ID] = &entry{res: res}
	g.mu.Unlock()
}

func isBlockedMarkup(el *document.Element) bool {
	return el.IsScript() &&
		strings.EqualFold(strings.TrimSpace(el.Type()), InertType) &&
		el.HasAttribute(AttrCategory)
}
