// Package cookies reads cookie snapshots from the places the scanner can
// observe them: a raw Cookie header, an HTTP request and a live document.
package cookies

import (
	"net/http"
	"strings"

	"github.com/haukened/cookiegate/internal/consent/domain"
	"github.com/haukened/cookiegate/internal/consent/gateways/document"
)

// ParseHeader splits a "name=value; name2=value2" string into cookies in
// order. It is lenient the way browsers are: pairs without "=" get an empty
// value, surrounding whitespace is trimmed and empty names are skipped.
func ParseHeader(s string) []domain.RawCookie {
	var out []domain.RawCookie
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out = append(out, domain.RawCookie{Name: name, Value: strings.TrimSpace(value)})
	}
	return out
}

// Header is a cookie source backed by a raw Cookie header string.
type Header string

func (h Header) Cookies() []domain.RawCookie { return ParseHeader(string(h)) }

// Request reads every Cookie header of an HTTP request.
type Request struct {
	Req *http.Request
}

func (r Request) Cookies() []domain.RawCookie {
	if r.Req == nil {
		return nil
	}
	var out []domain.RawCookie
	for _, line := range r.Req.Header.Values("Cookie") {
		out = append(out, ParseHeader(line)...)
	}
	return out
}

// Document reads the cookie namespace of a live document.
type Document struct {
	Doc *document.Document
}

func (d Document) Cookies() []domain.RawCookie {
	if d.Doc == nil {
		return nil
	}
	return ParseHeader(d.Doc.Cookie())
}

// Apply stores every cookie of a header string in doc.
func Apply(doc *document.Document, header string) {
	for _, c := range ParseHeader(header) {
		doc.SetCookie(c.Name, c.Value)
	}
}
