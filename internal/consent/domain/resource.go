package domain

// ResourceID identifies a script node for the lifetime of its document.
type ResourceID uint64

// BlockedResource is the typed record for a script held back pending consent.
// Source is empty for inline scripts, InlineContent is empty for external ones.
// Loaded flips to true exactly once, after which the record is never reused.
type BlockedResource struct {
	ID            ResourceID
	Category      Category
	Source        string
	InlineContent string
	ServiceID     string
	Loaded        bool
}

// IsInline reports whether the resource has no external source.
func (r BlockedResource) IsInline() bool { return r.Source == "" }

// ScriptClass is the classification of a script URL.
type ScriptClass struct {
	Category  Category // empty when unclassified
	ServiceID string
	Host      string
}

// Classified reports whether the URL resolved to a catalog service.
func (c ScriptClass) Classified() bool { return c.Category != "" }
