package gate

import (
	"sync"

	"github.com/haukened/cookiegate/internal/consent/domain"
	"github.com/haukened/cookiegate/internal/consent/gateways/document"
)

// interceptor sits in the document's creation chain so every script it
// produces consults the gate before its src is assigned. Other interceptors
// on the same document stay in the chain independently of this one.
type interceptor struct {
	gate    *Gate
	consent ConsentFunc
	unwrap  func()

	mu     sync.Mutex
	active bool
	once   sync.Once
}

// InstallInterceptor starts gating scripts created through the document
// from now on. A script whose URL resolves to a category getConsent denies
// is rewritten in place as blocked markup and never reaches the loader.
//
// The returned teardown removes this interceptor from the creation chain and
// leaves any installed by other gates in place. It is safe to call more
// than once. Scripts created while the interceptor was active stop
// consulting it after teardown.
func (g *Gate) InstallInterceptor(getConsent ConsentFunc) (func(), error) {
	if getConsent == nil {
		return nil, ErrNoConsentFunc
	}
	if g.doc == nil {
		return func() {}, nil
	}

	g.mu.Lock()
	if g.interceptor != nil {
		g.mu.Unlock()
		return nil, ErrInterceptorInstalled
	}
	ic := &interceptor{gate: g, consent: getConsent, active: true}
	g.interceptor = ic
	g.mu.Unlock()

	ic.unwrap = g.doc.WrapCreate(ic.wrap)

	g.logger.Debug(nil, "script_interceptor_installed")
	return ic.teardown, nil
}

func (ic *interceptor) wrap(next document.CreateFunc) document.CreateFunc {
	return func(tag string) *document.Element {
		el := next(tag)
		if el != nil && el.IsScript() {
			el.SetSrcHook(ic.hook(el.SrcHook()))
		}
		return el
	}
}

// hook checks src against this gate, then hands allowed assignments to
// the hook installed beneath it.
func (ic *interceptor) hook(inner document.SrcHook) document.SrcHook {
	return func(el *document.Element, src string) bool {
		if !ic.allow(el, src) {
			return false
		}
		if inner != nil {
			return inner(el, src)
		}
		return true
	}
}

func (ic *interceptor) allow(el *document.Element, src string) bool {
	ic.mu.Lock()
	active := ic.active
	ic.mu.Unlock()
	if !active {
		return true
	}
	class := ic.gate.Classify(src)
	if !class.Classified() || ic.consent(class.Category) {
		return true
	}
	ic.gate.block(el, src, class)
	return false
}

func (ic *interceptor) teardown() {
	ic.once.Do(func() {
		ic.mu.Lock()
		ic.active = false
		ic.mu.Unlock()

		ic.unwrap()

		ic.gate.mu.Lock()
		ic.gate.interceptor = nil
		ic.gate.mu.Unlock()
		ic.gate.logger.Debug(nil, "script_interceptor_removed")
	})
}

// block rewrites el as inert markup carrying the real source and registers it.
func (g *Gate) block(el *document.Element, src string, class domain.ScriptClass) {
	el.SetAttribute("type", InertType)
	el.SetAttribute(AttrCategory, class.Category.String())
	el.SetAttribute(AttrSource, src)
	if class.ServiceID != "" {
		el.SetAttribute(AttrServiceID, class.ServiceID)
	}
	g.register(domain.BlockedResource{
		ID:        el.ID(),
		Category:  class.Category,
		Source:    src,
		ServiceID: class.ServiceID,
	})
	g.logger.Info(map[string]any{
		"category":   class.Category,
		"service_id": class.ServiceID,
		"host":       class.Host,
	}, "script_blocked")
}

// GateExisting applies the consent check to executable external scripts
// already in the document, such as freshly parsed markup, and rewrites the
// denied ones as blocked markup. It returns how many scripts were blocked.
func (g *Gate) GateExisting(getConsent ConsentFunc) int {
	if g.doc == nil || getConsent == nil {
		return 0
	}
	n := 0
	for _, el := range g.doc.Scripts() {
		if el.HasAttribute(AttrLoaded) || !document.IsExecutableType(el.Type()) {
			continue
		}
		src := el.Src()
		if src == "" {
			continue
		}
		class := g.Classify(src)
		if !class.Classified() || getConsent(class.Category) {
			continue
		}
		el.RemoveAttribute("src")
		g.block(el, src, class)
		n++
	}
	return n
}
