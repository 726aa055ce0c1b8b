package domain

import "time"

// ScanSummary aggregates the counts of a scan.
type ScanSummary struct {
	Declared         int  `json:"declared"`
	KnownNotDeclared int  `json:"knownNotDeclared"`
	Unknown          int  `json:"unknown"`
	Issues           int  `json:"issues"`
	Compliant        bool `json:"compliant"`
}

// ScanResult is an immutable snapshot of one cookie scan.
type ScanResult struct {
	Timestamp        time.Time          `json:"timestamp"`
	TotalFound       int                `json:"totalFound"`
	Declared         []ClassifiedCookie `json:"declared"`
	KnownNotDeclared []ClassifiedCookie `json:"knownNotDeclared"`
	Unknown          []ClassifiedCookie `json:"unknown"`
	Summary          ScanSummary        `json:"summary"`
}

// NewScanResult sorts classified cookies into their buckets and computes the
// summary. Input order is preserved within each bucket.
func NewScanResult(ts time.Time, cookies []ClassifiedCookie) ScanResult {
	r := ScanResult{
		Timestamp:        ts,
		TotalFound:       len(cookies),
		Declared:         []ClassifiedCookie{},
		KnownNotDeclared: []ClassifiedCookie{},
		Unknown:          []ClassifiedCookie{},
	}
	for _, c := range cookies {
		switch c.Classification {
		case ClassificationDeclared:
			r.Declared = append(r.Declared, c)
		case ClassificationKnown:
			r.KnownNotDeclared = append(r.KnownNotDeclared, c)
		default:
			r.Unknown = append(r.Unknown, c)
		}
	}
	issues := len(r.KnownNotDeclared) + len(r.Unknown)
	r.Summary = ScanSummary{
		Declared:         len(r.Declared),
		KnownNotDeclared: len(r.KnownNotDeclared),
		Unknown:          len(r.Unknown),
		Issues:           issues,
		Compliant:        issues == 0,
	}
	return r
}

// All returns every cookie in report order: declared, known, unknown.
func (r ScanResult) All() []ClassifiedCookie {
	out := make([]ClassifiedCookie, 0, r.TotalFound)
	out = append(out, r.Declared...)
	out = append(out, r.KnownNotDeclared...)
	out = append(out, r.Unknown...)
	return out
}

// Compliance is the short answer of a quick compliance check.
type Compliance struct {
	Compliant bool `json:"compliant"`
	Issues    int  `json:"issues"`
}
