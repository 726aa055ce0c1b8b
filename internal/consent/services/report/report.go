// Package report renders scan results for people and for tools: a localized
// text report, a JSON document and a CSV table.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/haukened/cookiegate/internal/consent/domain"
)

// FormatText renders a human-readable report in the language closest to
// locale. A compliant result gets a banner; otherwise the issue count is
// followed by the undeclared known services and the unknown cookies.
func FormatText(r domain.ScanResult, locale string) string {
	p := printer(locale)
	var b strings.Builder

	line := func(indent int, key string, args ...any) {
		b.WriteString(strings.Repeat("  ", indent))
		b.WriteString(p.Sprintf(key, args...))
		b.WriteByte('\n')
	}

	line(0, msgTitle)
	line(0, msgScannedAt, r.Timestamp.UTC().Format(time.RFC3339))
	line(0, msgFound, r.TotalFound)
	line(0, msgDeclared, r.Summary.Declared)
	b.WriteByte('\n')

	if r.Summary.Compliant {
		line(0, msgCompliant)
		return b.String()
	}
	line(0, msgIssues, r.Summary.Issues)

	if len(r.KnownNotDeclared) > 0 {
		b.WriteByte('\n')
		line(0, msgKnownHeader, len(r.KnownNotDeclared))
		for _, c := range r.KnownNotDeclared {
			line(1, msgKnownLine, c.Name, c.ServiceName, c.Category, c.MatchedPattern)
			line(2, msgKnownAdvice, c.ServiceName)
		}
	}
	if len(r.Unknown) > 0 {
		b.WriteByte('\n')
		line(0, msgUnknownHeader, len(r.Unknown))
		for _, c := range r.Unknown {
			line(1, "%s", c.Name)
			line(2, msgUnknownAdvice)
		}
	}
	return b.String()
}

// JSON encodes the result with its three classification arrays.
func JSON(r domain.ScanResult) ([]byte, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode scan result: %w", err)
	}
	return b, nil
}

var csvHeader = []string{
	"classification", "name", "value", "size", "service_id", "service_name",
	"category", "matched_pattern", "suggestion", "found_at",
}

// CSV renders one row per cookie in report order. Free-text fields are
// always quoted; absent fields are left empty.
func CSV(r domain.ScanResult) []byte {
	var b bytes.Buffer
	b.WriteString(strings.Join(csvHeader, ","))
	b.WriteByte('\n')
	for _, c := range r.All() {
		row := []string{
			c.Classification.String(),
			quoted(c.Name),
			quoted(c.Value),
			strconv.Itoa(c.SizeBytes),
			quoted(c.ServiceID),
			quoted(c.ServiceName),
			string(c.Category),
			quoted(c.MatchedPattern),
			quoted(c.Suggestion),
			foundAt(c.FoundAt),
		}
		b.WriteString(strings.Join(row, ","))
		b.WriteByte('\n')
	}
	return b.Bytes()
}

func quoted(s string) string {
	if s == "" {
		return ""
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func foundAt(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
