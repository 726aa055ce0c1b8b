package gate

import (
	"context"
	"fmt"

	"github.com/haukened/cookiegate/internal/consent/domain"
	"github.com/haukened/cookiegate/internal/consent/gateways/document"
)

// UnblockFailure is a blocked resource that could not be released.
type UnblockFailure struct {
	Resource domain.BlockedResource
	Err      error
}

// UnblockReport collects the outcome of a bulk unblock. Failures never stop
// the run; Err is set only when the context ended it early.
type UnblockReport struct {
	Unblocked []domain.BlockedResource
	Failed    []UnblockFailure
	Err       error
}

// OK reports whether every resource was unblocked.
func (r UnblockReport) OK() bool { return len(r.Failed) == 0 && r.Err == nil }

func (r *UnblockReport) merge(o UnblockReport) {
	r.Unblocked = append(r.Unblocked, o.Unblocked...)
	r.Failed = append(r.Failed, o.Failed...)
	if o.Err != nil {
		r.Err = o.Err
	}
}

// Unblock releases one blocked script. A fresh executable script takes its
// attributes, minus the inert type and gate bookkeeping, and is placed where
// the blocked node sits, or at the end of head if that node is detached.
//
// Inline scripts complete immediately. External scripts complete when the
// loader reports back: on success the blocked node is removed, on failure
// the new node is removed and the blocked one stays blocked, and the error
// wraps ErrLoadFailed and names the URL. Unblocking an already released
// script is a no-op.
//
// If ctx ends first Unblock returns its error, but the load still settles
// in the background.
func (g *Gate) Unblock(ctx context.Context, el *document.Element) error {
	if g.doc == nil || el == nil {
		return nil
	}
	e, ok := g.lookup(el)
	if !ok {
		return fmt.Errorf("%w: script %d", ErrNotBlocked, el.ID())
	}

	g.mu.Lock()
	if e.res.Loaded {
		g.mu.Unlock()
		return nil
	}
	if e.inflight {
		g.mu.Unlock()
		return ErrUnblockInProgress
	}
	e.inflight = true
	res := e.res
	g.mu.Unlock()

	n := g.replacement(el, res)
	if res.IsInline() {
		return g.unblockInline(el, n, e)
	}
	return g.unblockExternal(ctx, el, n, e)
}

func (g *Gate) unblockInline(old, n *document.Element, e *entry) error {
	n.SetText(e.res.InlineContent)
	if err := g.insert(old, n, true); err != nil {
		g.release(e)
		return err
	}
	g.markLoaded(e, n)
	return nil
}

func (g *Gate) unblockExternal(ctx context.Context, old, n *document.Element, e *entry) error {
	src := e.res.Source
	done := make(chan error, 1)
	n.AddEventListener(document.EventLoad, func(error) {
		old.Remove()
		g.markLoaded(e, n)
		done <- nil
	})
	n.AddEventListener(document.EventError, func(err error) {
		n.Remove()
		g.release(e)
		done <- fmt.Errorf("%w: %w", ErrLoadFailed, err)
	})
	n.SetSrc(src)
	if err := g.insert(old, n, false); err != nil {
		g.release(e)
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("unblock %s: %w", src, ctx.Err())
	}
}

// replacement builds the executable copy of a blocked script, detached.
func (g *Gate) replacement(old *document.Element, res domain.BlockedResource) *document.Element {
	n := g.doc.NewElement("script")
	for _, a := range old.Attributes() {
		if a.Namespace != "" || isGateAttr(a.Key) {
			continue
		}
		n.SetAttribute(a.Key, a.Val)
	}
	n.SetAttribute(AttrCategory, res.Category.String())
	if res.ServiceID != "" {
		n.SetAttribute(AttrServiceID, res.ServiceID)
	}
	n.SetAttribute(AttrLoaded, "true")
	return n
}

// insert puts n at old's position, replacing old when replace is set, or
// appends n to head when old is detached.
func (g *Gate) insert(old, n *document.Element, replace bool) error {
	if old.Parent() != nil {
		if replace {
			return old.ReplaceWith(n)
		}
		return old.Before(n)
	}
	head := g.doc.Head()
	if head == nil {
		return ErrNoInsertionPoint
	}
	head.AppendChild(n)
	return nil
}

func (g *Gate) markLoaded(e *entry, n *document.Element) {
	g.mu.Lock()
	e.res.Loaded = true
	e.inflight = false
	g.records[n.ID()] = e
	res := e.res
	g.mu.Unlock()

	g.logger.Info(map[string]any{
		"category":   res.Category,
		"service_id": res.ServiceID,
		"source":     res.Source,
	}, "script_unblocked")
}

func (g *Gate) release(e *entry) {
	g.mu.Lock()
	e.inflight = false
	g.mu.Unlock()
}

func isGateAttr(key string) bool {
	switch key {
	case "type", "src", AttrCategory, AttrSource, AttrServiceID, AttrLoaded:
		return true
	}
	return false
}

// UnblockCategory unblocks every blocked script of cat, one at a time in
// document order. A failing script is logged and recorded and the run moves
// on. onEach, if set, receives the service id of each script released.
func (g *Gate) UnblockCategory(ctx context.Context, cat domain.Category, onEach func(serviceID string)) UnblockReport {
	var report UnblockReport
	for _, el := range g.BlockedScriptsByCategory(cat) {
		if err := ctx.Err(); err != nil {
			report.Err = err
			break
		}
		res, _ := g.Resource(el)
		if err := g.Unblock(ctx, el); err != nil {
			g.logger.Warn(map[string]any{
				"category":   cat,
				"service_id": res.ServiceID,
				"source":     res.Source,
				"error":      err,
			}, "unblock_failed")
			report.Failed = append(report.Failed, UnblockFailure{Resource: res, Err: err})
			continue
		}
		res, _ = g.Resource(el)
		report.Unblocked = append(report.Unblocked, res)
		if onEach != nil {
			onEach(res.ServiceID)
		}
	}
	return report
}

// UnblockByConsent unblocks every category state grants, in canonical
// category order. Categories that are not granted are left alone.
func (g *Gate) UnblockByConsent(ctx context.Context, state domain.ConsentState, onEach func(serviceID string)) UnblockReport {
	var report UnblockReport
	for _, cat := range state.Granted() {
		report.merge(g.UnblockCategory(ctx, cat, onEach))
		if report.Err != nil {
			break
		}
	}
	return report
}
