package document

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/haukened/cookiegate/internal/consent/domain"
)

// EventType names the script events a listener can subscribe to.
type EventType uint8

const (
	EventLoad EventType = iota
	EventError
)

// Listener receives a script event. err is nil for EventLoad.
type Listener func(err error)

// SrcHook intercepts assignments to an element's src. Returning false
// suppresses the native assignment.
type SrcHook func(el *Element, src string) bool

// LoadError reports a script that failed to load.
type LoadError struct {
	Src string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load script %s: %v", e.Src, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Element is a handle on a node of a Document. Handles are stable: the same
// node always yields the same *Element and ID.
type Element struct {
	doc       *Document
	node      *html.Node
	id        domain.ResourceID
	srcHook   SrcHook
	started   bool
	listeners map[EventType][]Listener
}

// ID returns the element's document-unique identifier.
func (e *Element) ID() domain.ResourceID { return e.id }

// Document returns the owning document.
func (e *Element) Document() *Document { return e.doc }

// TagName returns the lowercase tag name.
func (e *Element) TagName() string {
	return e.node.Data
}

// IsScript reports whether the element is a script element.
func (e *Element) IsScript() bool { return isScript(e.node) }

// GetAttribute returns an attribute value and whether it is present.
func (e *Element) GetAttribute(key string) (string, bool) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for _, a := range e.node.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// Attr returns an attribute value, or "" when absent.
func (e *Element) Attr(key string) string {
	v, _ := e.GetAttribute(key)
	return v
}

// HasAttribute reports whether the attribute is present.
func (e *Element) HasAttribute(key string) bool {
	_, ok := e.GetAttribute(key)
	return ok
}

// Attributes returns a copy of the element's attributes in markup order.
func (e *Element) Attributes() []html.Attribute {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	out := make([]html.Attribute, len(e.node.Attr))
	copy(out, e.node.Attr)
	return out
}

// SetAttribute sets an attribute. "src" goes through SetSrc so the src hook
// sees it.
func (e *Element) SetAttribute(key, val string) {
	key = strings.ToLower(key)
	if key == "src" {
		e.SetSrc(val)
		return
	}
	e.doc.mu.Lock()
	setAttr(e.node, key, val)
	e.doc.mu.Unlock()
}

// RemoveAttribute removes an attribute if present.
func (e *Element) RemoveAttribute(key string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	attrs := e.node.Attr[:0]
	for _, a := range e.node.Attr {
		if a.Namespace == "" && a.Key == key {
			continue
		}
		attrs = append(attrs, a)
	}
	e.node.Attr = attrs
}

// Src returns the src attribute.
func (e *Element) Src() string { return e.Attr("src") }

// SetSrc assigns the resource URL. An installed src hook may suppress the
// assignment, in which case nothing is fetched.
func (e *Element) SetSrc(src string) {
	e.doc.mu.Lock()
	hook := e.srcHook
	e.doc.mu.Unlock()

	if hook != nil && !hook(e, src) {
		return
	}
	e.doc.mu.Lock()
	setAttr(e.node, "src", src)
	e.doc.mu.Unlock()
	e.doc.prepareScript(e)
}

// SetSrcHook installs (or, with nil, removes) the src hook.
func (e *Element) SetSrcHook(h SrcHook) {
	e.doc.mu.Lock()
	e.srcHook = h
	e.doc.mu.Unlock()
}

// SrcHook returns the installed src hook, or nil.
func (e *Element) SrcHook() SrcHook {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.srcHook
}

// Type returns the type attribute.
func (e *Element) Type() string { return e.Attr("type") }

// Text returns the concatenated text content.
func (e *Element) Text() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return textOf(e.node)
}

// SetText replaces all children with a single text node.
func (e *Element) SetText(s string) {
	e.doc.mu.Lock()
	for c := e.node.FirstChild; c != nil; {
		next := c.NextSibling
		e.node.RemoveChild(c)
		c = next
	}
	if s != "" {
		e.node.AppendChild(&html.Node{Type: html.TextNode, Data: s})
	}
	e.doc.mu.Unlock()
}

// Parent returns the parent element, or nil when detached or at the top.
func (e *Element) Parent() *Element {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	p := e.node.Parent
	if p == nil || p.Type != html.ElementNode {
		return nil
	}
	return e.doc.wrapLocked(p)
}

// IsConnected reports whether the element is part of the document tree.
func (e *Element) IsConnected() bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.doc.connectedLocked(e.node)
}

// AppendChild moves child to the end of e's children.
func (e *Element) AppendChild(child *Element) {
	e.doc.mu.Lock()
	detach(child.node)
	e.node.AppendChild(child.node)
	e.doc.mu.Unlock()
	e.doc.prepareScript(child)
}

// InsertBefore inserts child before ref, which must be a child of e. A nil
// ref appends.
func (e *Element) InsertBefore(child, ref *Element) error {
	if ref == nil {
		e.AppendChild(child)
		return nil
	}
	e.doc.mu.Lock()
	if ref.node.Parent != e.node {
		e.doc.mu.Unlock()
		return fmt.Errorf("reference element is not a child of <%s>", e.node.Data)
	}
	detach(child.node)
	e.node.InsertBefore(child.node, ref.node)
	e.doc.mu.Unlock()
	e.doc.prepareScript(child)
	return nil
}

// Before inserts n immediately before e. It fails when e is detached.
func (e *Element) Before(n *Element) error {
	e.doc.mu.Lock()
	parent := e.node.Parent
	if parent == nil {
		e.doc.mu.Unlock()
		return fmt.Errorf("element <%s> has no parent", e.node.Data)
	}
	detach(n.node)
	parent.InsertBefore(n.node, e.node)
	e.doc.mu.Unlock()
	e.doc.prepareScript(n)
	return nil
}

// ReplaceWith puts n where e is and detaches e. It fails when e is detached.
func (e *Element) ReplaceWith(n *Element) error {
	if err := e.Before(n); err != nil {
		return err
	}
	e.Remove()
	return nil
}

// Remove detaches the element from its parent.
func (e *Element) Remove() {
	e.doc.mu.Lock()
	detach(e.node)
	e.doc.mu.Unlock()
}

// AddEventListener subscribes fn to a script event.
func (e *Element) AddEventListener(t EventType, fn Listener) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[EventType][]Listener)
	}
	e.listeners[t] = append(e.listeners[t], fn)
}

func (e *Element) dispatch(t EventType, err error) {
	e.doc.mu.Lock()
	ls := append([]Listener(nil), e.listeners[t]...)
	e.doc.mu.Unlock()
	for _, fn := range ls {
		fn(err)
	}
}

func detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func textOf(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}
