package schema

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/goccy/go-json"
)

type wireDocument struct {
	ID           string            `json:"id,omitempty"`
	AuditHistory AuditHistory      `json:"auditHistory"`
	Components   []json.RawMessage `json:"components"`
	FormConfig   *FormConfig       `json:"formConfig,omitempty"`
}

type wireSection struct {
	Title       string            `json:"title"`
	Name        string            `json:"name,omitempty"`
	CanCollapse bool              `json:"canCollapsed,omitempty"`
	IsCollapsed bool              `json:"isCollapsed,omitempty"`
	Repeatable  bool              `json:"repeatable,omitempty"`
	Elements    []json.RawMessage `json:"elements"`
}

type wireNode struct {
	Type        string          `json:"type"`
	Multiselect bool            `json:"multiselect,omitempty"`
	Attributes  json.RawMessage `json:"attributes"`
}

type wireTemplate struct {
	Type     string            `json:"type,omitempty"`
	Elements []json.RawMessage `json:"elements"`
}

// Decode parses a form document. It stops at the first node whose type is
// unknown or whose required attributes are missing and returns an *Error
// locating it.
func Decode(data []byte) (*Document, error) {
	var w wireDocument
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, Errorf("$", CodeParse, "%v", err)
	}
	doc := &Document{
		ID:           w.ID,
		AuditHistory: w.AuditHistory,
		FormConfig:   w.FormConfig,
		Components:   make([]*Section, 0, len(w.Components)),
	}
	for i, raw := range w.Components {
		path := fmt.Sprintf("components[%d]", i)
		var ws wireSection
		if err := json.Unmarshal(raw, &ws); err != nil {
			return nil, Errorf(path, CodeParse, "%v", err)
		}
		elements, err := decodeNodes(path+".elements", ws.Elements)
		if err != nil {
			return nil, err
		}
		doc.Components = append(doc.Components, &Section{
			Title:       ws.Title,
			Name:        ws.Name,
			CanCollapse: ws.CanCollapse,
			IsCollapsed: ws.IsCollapsed,
			Repeatable:  ws.Repeatable,
			Elements:    elements,
		})
	}
	return doc, nil
}

// DecodeNode parses a single component.
func DecodeNode(data []byte) (*Node, error) {
	return decodeNode("$", data)
}

func decodeNodes(path string, raws []json.RawMessage) ([]*Node, error) {
	nodes := make([]*Node, 0, len(raws))
	for i, raw := range raws {
		n, err := decodeNode(fmt.Sprintf("%s[%d]", path, i), raw)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func decodeNode(path string, raw json.RawMessage) (*Node, error) {
	var w wireNode
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, Errorf(path, CodeParse, "%v", err)
	}
	kind, ok := ParseKind(w.Type)
	if !ok {
		return nil, Errorf(path+".type", CodeUnknownType, "unknown component type %q", w.Type)
	}

	attrsPath := path + ".attributes"
	rawAttrs := w.Attributes
	if isNull(rawAttrs) {
		rawAttrs = json.RawMessage("{}")
	}
	var present map[string]json.RawMessage
	if err := json.Unmarshal(rawAttrs, &present); err != nil {
		return nil, Errorf(attrsPath, CodeParse, "attributes must be an object: %v", err)
	}
	attrs := newAttributes(kind)
	if err := json.Unmarshal(rawAttrs, attrs); err != nil {
		return nil, Errorf(attrsPath, CodeInvalidAttribute, "%v", err)
	}

	node := &Node{
		Kind:        kind,
		Multiselect: w.Multiselect,
		Attributes:  attrs,
		Raw:         rawAttrs,
	}
	known := knownKeys(reflect.TypeOf(attrs).Elem())
	for k, v := range present {
		if known[k] {
			continue
		}
		if node.Extra == nil {
			node.Extra = make(map[string]json.RawMessage)
		}
		node.Extra[k] = v
	}

	if err := checkRequired(attrsPath, node, present); err != nil {
		return nil, err
	}

	switch a := attrs.(type) {
	case *ConditionAttrs:
		var raws []json.RawMessage
		if err := json.Unmarshal(present["children"], &raws); err != nil {
			return nil, Errorf(attrsPath+".children", CodeInvalidAttribute, "children must be a list: %v", err)
		}
		children, err := decodeNodes(attrsPath+".children", raws)
		if err != nil {
			return nil, err
		}
		a.Children = children
	case *RepeaterAttrs:
		var wt wireTemplate
		if err := json.Unmarshal(present["template"], &wt); err != nil {
			return nil, Errorf(attrsPath+".template", CodeInvalidAttribute, "%v", err)
		}
		elements, err := decodeNodes(attrsPath+".template.elements", wt.Elements)
		if err != nil {
			return nil, err
		}
		a.Template.Elements = elements
	}
	return node, nil
}

// checkRequired enforces the attributes each kind cannot do without.
func checkRequired(path string, n *Node, present map[string]json.RawMessage) error {
	has := func(key string) bool {
		v, ok := present[key]
		return ok && !isNull(v)
	}
	missing := func(key string) error {
		return Errorf(path+"."+key, CodeMissingAttribute, "%s requires %q", n.Kind, key)
	}

	if n.Kind.HoldsData() && strings.TrimSpace(n.FieldName()) == "" {
		return missing("field_name")
	}
	switch a := n.Attributes.(type) {
	case *TableStaticAttrs, *TableDynamicAttrs:
		if !has("columns") {
			return missing("columns")
		}
	case *CalculatedAttrs:
		if strings.TrimSpace(a.Formula) == "" {
			return missing("formula")
		}
		if !has("dependencies") {
			return missing("dependencies")
		}
	case *ConditionAttrs:
		if !has("condition") {
			return missing("condition")
		}
		if a.Condition.Field == "" {
			return missing("condition.field")
		}
		if !has("children") {
			return missing("children")
		}
	case *RepeaterAttrs:
		if !has("template") {
			return missing("template")
		}
	case *LockAttrs:
		if _, ok := present["value"]; !ok {
			return missing("value")
		}
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

var keyCache sync.Map // reflect.Type -> map[string]bool

// knownKeys lists the JSON keys a record type declares, including those of
// embedded structs and the nested lists decoded by hand.
func knownKeys(t reflect.Type) map[string]bool {
	if v, ok := keyCache.Load(t); ok {
		return v.(map[string]bool)
	}
	keys := make(map[string]bool)
	collectKeys(t, keys)
	if t == reflect.TypeOf(ConditionAttrs{}) {
		keys["children"] = true
	}
	keyCache.Store(t, keys)
	return keys
}

func collectKeys(t reflect.Type, keys map[string]bool) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if f.Anonymous && tag == "" && f.Type.Kind() == reflect.Struct {
			collectKeys(f.Type, keys)
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		keys[name] = true
	}
}
