package domain

import (
	"fmt"
	"time"
)

// RawCookie is a name/value pair as read from a cookie store.
type RawCookie struct {
	Name  string
	Value string
}

// ScannedCookie is a read-only snapshot of one cookie. Value is truncated.
type ScannedCookie struct {
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	SizeBytes int       `json:"size"`
	FoundAt   time.Time `json:"foundAt"`
}

// Classification is the three-way outcome assigned to an observed cookie.
type Classification uint8

const (
	// ClassificationUnknown means no catalog entry matched the cookie.
	ClassificationUnknown Classification = iota
	// ClassificationDeclared means the cookie belongs to a service the site declares.
	ClassificationDeclared
	// ClassificationKnown means the cookie belongs to a catalog service the site has not declared.
	ClassificationKnown
)

// String returns a stable representation used in exports.
func (c Classification) String() string {
	switch c {
	case ClassificationUnknown:
		return "unknown"
	case ClassificationDeclared:
		return "declared"
	case ClassificationKnown:
		return "known_not_declared"
	default:
		return fmt.Sprintf("Classification(%d)", c)
	}
}

// MarshalText encodes the classification by name.
func (c Classification) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a classification name written by MarshalText.
func (c *Classification) UnmarshalText(b []byte) error {
	switch string(b) {
	case "unknown":
		*c = ClassificationUnknown
	case "declared":
		*c = ClassificationDeclared
	case "known_not_declared":
		*c = ClassificationKnown
	default:
		return fmt.Errorf("unsupported classification: %q", b)
	}
	return nil
}

// ClassifiedCookie is a ScannedCookie plus its classification. Service fields
// are empty when nothing matched; Suggestion is empty for declared cookies.
type ClassifiedCookie struct {
	ScannedCookie
	Classification Classification `json:"classification"`
	ServiceID      string         `json:"serviceId,omitempty"`
	ServiceName    string         `json:"serviceName,omitempty"`
	Category       Category       `json:"category,omitempty"`
	MatchedPattern string         `json:"matchedPattern,omitempty"`
	Suggestion     string         `json:"suggestion,omitempty"`
}

// HasService reports whether the cookie matched a catalog entry.
func (c ClassifiedCookie) HasService() bool { return c.ServiceID != "" }
