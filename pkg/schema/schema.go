// Package schema is the typed model of a declarative form document.
// A document is an ordered list of sections, each holding component nodes.
// Every node carries a kind and exactly one attribute record for that kind.
package schema

import (
	"strings"
	"unicode"

	"github.com/goccy/go-json"
)

// Document is the root container of a form definition.
// Only `components` drives the control tree; `auditHistory` is metadata.
type Document struct {
	ID           string       `json:"id,omitempty"`
	AuditHistory AuditHistory `json:"auditHistory"`
	Components   []*Section   `json:"components"`
	FormConfig   *FormConfig  `json:"formConfig,omitempty"`
}

// AuditHistory records who created and last touched a form.
type AuditHistory struct {
	UserName    string `json:"userName,omitempty"`
	FormName    string `json:"formName,omitempty"`
	Location    string `json:"location,omitempty"`
	CreatedBy   string `json:"createdBy,omitempty"`
	UpdatedBy   string `json:"updatedBy,omitempty"`
	CreatedDate string `json:"createdDate,omitempty"`
	UpdatedDate string `json:"updatedDate,omitempty"`
	Status      string `json:"status,omitempty"`
	UserID      string `json:"userID,omitempty"`
}

// FormConfig describes where a submitted form is meant to go.
// SPParameters maps stored procedure parameter names to field names.
type FormConfig struct {
	DatabaseName    string            `json:"databaseName,omitempty"`
	SaveMethod      string            `json:"saveMethod,omitempty"` // "stored_procedure" or "rest_api"
	StoredProcedure string            `json:"storedProcedure,omitempty"`
	SPParameters    map[string]string `json:"spParameters,omitempty"`
	APIEndpoint     string            `json:"apiEndpoint,omitempty"`
}

// Section is an ordered group of nodes. Order is rendering and evaluation order.
type Section struct {
	Title       string  `json:"title"`
	Name        string  `json:"name,omitempty"` // collection key when Repeatable
	CanCollapse bool    `json:"canCollapsed,omitempty"`
	IsCollapsed bool    `json:"isCollapsed,omitempty"`
	Repeatable  bool    `json:"repeatable,omitempty"`
	Elements    []*Node `json:"elements"`
}

// Key returns the control tree name of a repeatable section: its name, or a
// lower-case slug of its title.
func (s *Section) Key() string {
	if s.Name != "" {
		return s.Name
	}
	var b strings.Builder
	underscore := false
	for _, r := range strings.TrimSpace(s.Title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// Node is one component of a form.
// Attributes always holds the record matching Kind. Extra keeps attribute
// keys the record does not know about, and Raw the attribute bytes as
// they were decoded; both are only passed through to renderers.
type Node struct {
	Kind        Kind
	Multiselect bool
	Attributes  Attributes
	Extra       map[string]json.RawMessage
	Raw         json.RawMessage
}

// FieldName returns the node's field_name, or "" for kinds that hold no data.
func (n *Node) FieldName() string {
	if f, ok := n.Attributes.(interface{ fieldName() string }); ok {
		return f.fieldName()
	}
	return ""
}

// Label returns the node's label, if its kind has one.
func (n *Node) Label() string {
	if l, ok := n.Attributes.(interface{ label() string }); ok {
		return l.label()
	}
	return ""
}

// MarshalJSON writes the node back in document form.
func (n *Node) MarshalJSON() ([]byte, error) {
	attrs := n.Raw
	if len(attrs) == 0 {
		b, err := json.Marshal(n.Attributes)
		if err != nil {
			return nil, err
		}
		attrs = b
	}
	return json.Marshal(struct {
		Type        Kind            `json:"type"`
		Multiselect bool            `json:"multiselect,omitempty"`
		Attributes  json.RawMessage `json:"attributes"`
	}{n.Kind, n.Multiselect, attrs})
}

// UnmarshalJSON decodes a whole document. See Decode.
func (d *Document) UnmarshalJSON(data []byte) error {
	doc, err := Decode(data)
	if err != nil {
		return err
	}
	*d = *doc
	return nil
}

// Walk visits nodes depth-first, descending into condition children and
// repeater templates. Returning false from fn skips the node's subtree.
func Walk(nodes []*Node, fn func(*Node) bool) {
	for _, n := range nodes {
		if n == nil || !fn(n) {
			continue
		}
		Walk(n.Children(), fn)
	}
}

// Children returns the nested nodes of a condition or repeater.
func (n *Node) Children() []*Node {
	switch a := n.Attributes.(type) {
	case *ConditionAttrs:
		return a.Children
	case *RepeaterAttrs:
		return a.Template.Elements
	}
	return nil
}
