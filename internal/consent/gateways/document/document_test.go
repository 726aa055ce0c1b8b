package document

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingLoader records requested URLs and fails the ones in fail.
type recordingLoader struct {
	mu   sync.Mutex
	urls []string
	fail map[string]error
}

func (l *recordingLoader) Load(_ context.Context, src string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.urls = append(l.urls, src)
	return l.fail[src]
}

func (l *recordingLoader) requested() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.urls...)
}

func TestNew_HasHeadAndBody(t *testing.T) {
	d := New()
	require.NotNil(t, d.Head())
	require.NotNil(t, d.Body())
	assert.Equal(t, "head", d.Head().TagName())
	assert.Empty(t, d.Scripts())
}

func TestParse_ScriptsInDocumentOrderAndStarted(t *testing.T) {
	page := `<html><head><script src="https://a.example/a.js"></script></head>
<body><script>console.log(1)</script><script type="text/plain" data-consent-category="analytics"></script></body></html>`
	l := &recordingLoader{}
	d, err := Parse(strings.NewReader(page), WithLoader(l))
	require.NoError(t, err)

	scripts := d.Scripts()
	require.Len(t, scripts, 3)
	assert.Equal(t, "https://a.example/a.js", scripts[0].Src())
	assert.Equal(t, "console.log(1)", scripts[1].Text())
	assert.Equal(t, "analytics", scripts[2].Attr("data-consent-category"))

	// parser-inserted scripts are not fetched again
	d.Wait()
	assert.Empty(t, l.requested())

	// handles are stable
	again := d.Scripts()
	assert.Same(t, scripts[0], again[0])
	assert.Equal(t, scripts[0].ID(), again[0].ID())
}

func TestElement_LoadFiresOnInsertion(t *testing.T) {
	l := &recordingLoader{fail: map[string]error{"https://bad.example/x.js": errors.New("404")}}
	d := New(WithLoader(l))

	good := d.CreateElement("script")
	good.SetSrc("https://good.example/x.js")
	assert.Empty(t, l.requested(), "detached scripts are not fetched")

	loaded := make(chan error, 1)
	good.AddEventListener(EventLoad, func(err error) { loaded <- err })
	d.Head().AppendChild(good)
	assert.NoError(t, <-loaded)

	bad := d.CreateElement("script")
	bad.SetSrc("https://bad.example/x.js")
	failed := make(chan error, 1)
	bad.AddEventListener(EventError, func(err error) { failed <- err })
	d.Body().AppendChild(bad)
	err := <-failed
	require.Error(t, err)
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "https://bad.example/x.js", le.Src)
	assert.Contains(t, err.Error(), "https://bad.example/x.js")

	// moving an already started script does not fetch it again
	d.Body().AppendChild(good)
	d.Wait()
	assert.Equal(t, []string{"https://good.example/x.js", "https://bad.example/x.js"}, l.requested())
}

func TestElement_InertTypeIsNotFetched(t *testing.T) {
	l := &recordingLoader{}
	d := New(WithLoader(l))
	el := d.CreateElement("script")
	el.SetAttribute("type", "text/plain")
	el.SetSrc("https://tracker.example/t.js")
	d.Head().AppendChild(el)
	d.Wait()
	assert.Empty(t, l.requested())
}

func TestElement_SrcHookSuppressesAssignment(t *testing.T) {
	l := &recordingLoader{}
	d := New(WithLoader(l))
	el := d.CreateElement("script")

	var seen []string
	el.SetSrcHook(func(e *Element, src string) bool {
		seen = append(seen, src)
		return false
	})
	el.SetAttribute("SRC", "https://tracker.example/t.js")
	d.Head().AppendChild(el)
	d.Wait()

	assert.Equal(t, []string{"https://tracker.example/t.js"}, seen)
	assert.False(t, el.HasAttribute("src"))
	assert.Empty(t, l.requested())

	el.SetSrcHook(nil)
	el.SetSrc("https://ok.example/ok.js")
	d.Wait()
	assert.Equal(t, []string{"https://ok.example/ok.js"}, l.requested())
}

func TestSwapCreateFunc(t *testing.T) {
	d := New()
	var created []string
	prev := d.SwapCreateFunc(func(tag string) *Element {
		created = append(created, tag)
		return d.NewElement(tag)
	})
	require.NotNil(t, prev)

	d.CreateElement("script")
	d.NewElement("div") // native creation bypasses the wrapper
	assert.Equal(t, []string{"script"}, created)

	d.SwapCreateFunc(prev)
	d.CreateElement("script")
	assert.Equal(t, []string{"script"}, created)

	d.SwapCreateFunc(nil)
	assert.Equal(t, "p", d.CreateElement("P").TagName())
}

func TestWrapCreate(t *testing.T) {
	d := New()
	var calls []string
	wrapper := func(name string) CreateWrapper {
		return func(next CreateFunc) CreateFunc {
			return func(tag string) *Element {
				calls = append(calls, name)
				return next(tag)
			}
		}
	}

	unwrapA := d.WrapCreate(wrapper("a"))
	unwrapB := d.WrapCreate(wrapper("b"))
	d.CreateElement("script")
	assert.Equal(t, []string{"b", "a"}, calls)

	calls = nil
	unwrapA()
	unwrapA()
	d.CreateElement("script")
	assert.Equal(t, []string{"b"}, calls, "removing an inner wrapper keeps the outer one")

	// a swapped base function stays beneath the wrappers
	var based int
	d.SwapCreateFunc(func(tag string) *Element {
		based++
		return d.NewElement(tag)
	})
	calls = nil
	d.CreateElement("div")
	assert.Equal(t, []string{"b"}, calls)
	assert.Equal(t, 1, based)

	unwrapB()
	calls = nil
	d.CreateElement("div")
	assert.Empty(t, calls)
	assert.Equal(t, 2, based)
}

func TestElement_TreeOperations(t *testing.T) {
	d := New()
	head := d.Head()
	a := d.NewElement("script")
	a.SetText("a()")
	b := d.NewElement("script")
	b.SetText("b()")
	c := d.NewElement("script")
	c.SetText("c()")

	head.AppendChild(a)
	head.AppendChild(c)
	require.NoError(t, head.InsertBefore(b, c))
	assert.Equal(t, []string{"a()", "b()", "c()"}, texts(d.Scripts()))

	other := d.NewElement("script")
	assert.Error(t, d.Body().InsertBefore(other, a), "ref must be a child")

	r := d.NewElement("script")
	r.SetText("r()")
	require.NoError(t, b.ReplaceWith(r))
	assert.Equal(t, []string{"a()", "r()", "c()"}, texts(d.Scripts()))
	assert.False(t, b.IsConnected())
	assert.Nil(t, b.Parent())
	assert.Error(t, b.Before(other), "detached elements have no position")

	assert.Same(t, head, r.Parent())
	c.Remove()
	assert.Equal(t, []string{"a()", "r()"}, texts(d.Scripts()))
	got, ok := d.ElementByID(c.ID())
	assert.True(t, ok)
	assert.Same(t, c, got)
}

func TestElement_Attributes(t *testing.T) {
	d := New()
	el := d.NewElement("script")
	el.SetAttribute("async", "")
	el.SetAttribute("data-x", "1")
	el.SetAttribute("data-x", "2")
	assert.Equal(t, "2", el.Attr("data-x"))
	assert.True(t, el.HasAttribute("async"))
	assert.Len(t, el.Attributes(), 2)

	el.RemoveAttribute("data-x")
	_, ok := el.GetAttribute("data-x")
	assert.False(t, ok)
	assert.Len(t, el.Attributes(), 1)

	el.SetText("x()")
	el.SetText("")
	assert.Equal(t, "", el.Text())
}

func TestDocument_RenderRoundTrip(t *testing.T) {
	d := New()
	el := d.NewElement("script")
	el.SetAttribute("type", "text/plain")
	el.SetAttribute("data-consent-src", "https://x.example/x.js")
	d.Head().AppendChild(el)

	out := d.String()
	assert.Contains(t, out, `<script type="text/plain" data-consent-src="https://x.example/x.js"></script>`)

	re, err := Parse(strings.NewReader(out))
	require.NoError(t, err)
	require.Len(t, re.Scripts(), 1)
	assert.Equal(t, "text/plain", re.Scripts()[0].Type())
}

func TestDocument_Cookies(t *testing.T) {
	d := New()
	assert.Equal(t, "", d.Cookie())
	d.SetCookie("_ga", "GA1.2.3")
	d.SetCookie("_hjid", "abc")
	d.SetCookie("_ga", "GA1.2.4")
	assert.Equal(t, "_ga=GA1.2.4; _hjid=abc", d.Cookie())
	d.DeleteCookie("_ga")
	d.DeleteCookie("missing")
	assert.Equal(t, "_hjid=abc", d.Cookie())
}

func TestIsExecutableType(t *testing.T) {
	for _, typ := range []string{"", "text/javascript", "module", " Application/JavaScript "} {
		assert.True(t, IsExecutableType(typ), typ)
	}
	for _, typ := range []string{"text/plain", "application/json", "text/x-template"} {
		assert.False(t, IsExecutableType(typ), typ)
	}
}

func texts(els []*Element) []string {
	out := make([]string, 0, len(els))
	for _, e := range els {
		out = append(out, e.Text())
	}
	return out
}
