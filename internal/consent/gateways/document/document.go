// Package document models the host page the consent gate works on: an HTML
// tree with script elements, a swappable element-creation function, a
// per-element resource URL setter hook, asynchronous script loading with
// load/error events, and a cookie namespace.
//
// All methods are safe for concurrent use. Hooks, loaders and event
// listeners are always invoked without the document lock held.
package document

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/haukened/cookiegate/internal/consent/domain"
)

const emptyPage = "<!DOCTYPE html><html><head></head><body></body></html>"

// Loader fetches and runs an external script. It stands in for the
// browser's native resource loading.
type Loader interface {
	Load(ctx context.Context, src string) error
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, src string) error

func (f LoaderFunc) Load(ctx context.Context, src string) error { return f(ctx, src) }

// CreateFunc creates a detached element for a tag name.
type CreateFunc func(tag string) *Element

// CreateWrapper decorates the creation function beneath it in the chain.
type CreateWrapper func(next CreateFunc) CreateFunc

type createEntry struct {
	wrap CreateWrapper
}

// Option configures a Document.
type Option func(*Document)

// WithLoader sets the loader used for external scripts. Without one every
// load succeeds immediately.
func WithLoader(l Loader) Option {
	return func(d *Document) {
		if l != nil {
			d.loader = l
		}
	}
}

// WithContext sets the context passed to the loader.
func WithContext(ctx context.Context) Option {
	return func(d *Document) { d.ctx = ctx }
}

type cookie struct {
	name, value string
}

// Document is a live HTML document.
type Document struct {
	mu       sync.Mutex
	root     *html.Node
	elements map[*html.Node]*Element
	byID     map[domain.ResourceID]*Element
	nextID   domain.ResourceID
	create   CreateFunc
	wrappers []*createEntry
	loader   Loader
	ctx      context.Context
	cookies  []cookie
	inflight sync.WaitGroup
}

// New returns an empty document with html, head and body elements.
func New(opts ...Option) *Document {
	d, err := Parse(strings.NewReader(emptyPage), opts...)
	if err != nil {
		// the constant page always parses
		panic(fmt.Sprintf("document: parsing empty page: %v", err))
	}
	return d
}

// Parse reads an HTML page. Scripts already in the markup count as started:
// the parser has run them and they are never loaded again.
func Parse(r io.Reader, opts ...Option) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	d := &Document{
		root:     root,
		elements: make(map[*html.Node]*Element),
		byID:     make(map[domain.ResourceID]*Element),
		loader:   LoaderFunc(func(context.Context, string) error { return nil }),
		ctx:      context.Background(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.create = d.NewElement

	walk(root, func(n *html.Node) {
		if isScript(n) {
			d.wrapLocked(n).started = true
		}
	})
	return d, nil
}

// CreateElement creates an element through the installed creation function
// and every wrapper on top of it, the most recent outermost.
func (d *Document) CreateElement(tag string) *Element {
	d.mu.Lock()
	create := d.create
	wrappers := append([]*createEntry(nil), d.wrappers...)
	d.mu.Unlock()
	for _, w := range wrappers {
		create = w.wrap(create)
	}
	return create(tag)
}

// WrapCreate pushes w onto the creation chain. The returned unwrap removes
// exactly this entry, whatever was pushed after it, and is safe to call
// more than once.
func (d *Document) WrapCreate(w CreateWrapper) (unwrap func()) {
	e := &createEntry{wrap: w}
	d.mu.Lock()
	d.wrappers = append(d.wrappers, e)
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, cur := range d.wrappers {
			if cur == e {
				d.wrappers = append(d.wrappers[:i:i], d.wrappers[i+1:]...)
				return
			}
		}
	}
}

// NewElement is the native creation function: it always builds a plain
// element, whatever creation function is installed.
func (d *Document) NewElement(tag string) *Element {
	tag = strings.ToLower(strings.TrimSpace(tag))
	n := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Lookup([]byte(tag)),
		Data:     tag,
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.wrapLocked(n)
}

// SwapCreateFunc installs fn as the base creation function, beneath any
// wrappers, and returns the one it replaces. Passing nil restores native
// creation.
func (d *Document) SwapCreateFunc(fn CreateFunc) CreateFunc {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev := d.create
	if fn == nil {
		fn = d.NewElement
	}
	d.create = fn
	return prev
}

// Head returns the head element, or nil if the document has none.
func (d *Document) Head() *Element { return d.findFirst(atom.Head) }

// Body returns the body element, or nil if the document has none.
func (d *Document) Body() *Element { return d.findFirst(atom.Body) }

func (d *Document) findFirst(a atom.Atom) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	var found *html.Node
	walk(d.root, func(n *html.Node) {
		if found == nil && n.Type == html.ElementNode && n.DataAtom == a {
			found = n
		}
	})
	if found == nil {
		return nil
	}
	return d.wrapLocked(found)
}

// Scripts returns every connected script element in document order.
func (d *Document) Scripts() []*Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*Element
	walk(d.root, func(n *html.Node) {
		if isScript(n) {
			out = append(out, d.wrapLocked(n))
		}
	})
	return out
}

// ElementByID returns the element with the given id if it is still known.
func (d *Document) ElementByID(id domain.ResourceID) (*Element, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, ok := d.byID[id]
	return el, ok
}

// Render writes the document as HTML.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}

// String renders the document, ignoring errors.
func (d *Document) String() string {
	var b strings.Builder
	_ = d.Render(&b)
	return b.String()
}

// Wait blocks until every script load started so far has settled.
func (d *Document) Wait() {
	d.inflight.Wait()
}

// Cookie returns the cookie namespace in "a=1; b=2" form.
func (d *Document) Cookie() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	parts := make([]string, 0, len(d.cookies))
	for _, c := range d.cookies {
		parts = append(parts, c.name+"="+c.value)
	}
	return strings.Join(parts, "; ")
}

// SetCookie adds a cookie or replaces the value of an existing one.
func (d *Document) SetCookie(name, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.cookies {
		if d.cookies[i].name == name {
			d.cookies[i].value = value
			return
		}
	}
	d.cookies = append(d.cookies, cookie{name: name, value: value})
}

// DeleteCookie removes a cookie if present.
func (d *Document) DeleteCookie(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.cookies {
		if d.cookies[i].name == name {
			d.cookies = append(d.cookies[:i], d.cookies[i+1:]...)
			return
		}
	}
}

// wrapLocked returns the Element for n, assigning an id on first sight.
func (d *Document) wrapLocked(n *html.Node) *Element {
	if el, ok := d.elements[n]; ok {
		return el
	}
	d.nextID++
	el := &Element{doc: d, node: n, id: d.nextID}
	d.elements[n] = el
	d.byID[el.id] = el
	return el
}

// connectedLocked reports whether n hangs off the document root.
func (d *Document) connectedLocked(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}

// prepareScript starts an external script that has just become eligible:
// connected, executable, with a source and not started before. Inline
// scripts are marked started and run synchronously, so they fire no event.
func (d *Document) prepareScript(el *Element) {
	d.mu.Lock()
	if el.started || !isScript(el.node) || !d.connectedLocked(el.node) ||
		!IsExecutableType(attr(el.node, "type")) {
		d.mu.Unlock()
		return
	}
	src := attr(el.node, "src")
	if src == "" {
		if textOf(el.node) != "" {
			el.started = true
		}
		d.mu.Unlock()
		return
	}
	el.started = true
	loader, ctx := d.loader, d.ctx
	d.inflight.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.inflight.Done()
		err := loader.Load(ctx, src)
		if err != nil {
			el.dispatch(EventError, &LoadError{Src: src, Err: err})
			return
		}
		el.dispatch(EventLoad, nil)
	}()
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func isScript(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode && n.DataAtom == atom.Script
}

// IsExecutableType reports whether a script type attribute value makes the
// browser run the script. Anything else, such as "text/plain", is inert.
func IsExecutableType(t string) bool {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "", "text/javascript", "application/javascript", "module",
		"text/ecmascript", "application/ecmascript", "application/x-javascript":
		return true
	default:
		return false
	}
}
