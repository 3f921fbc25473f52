package schema

import (
	"bytes"
	"strconv"

	"github.com/goccy/go-json"
)

// Attributes is implemented by the one attribute record of each kind.
type Attributes interface {
	Kind() Kind
}

// Style is a free-form map of CSS-like properties.
type Style map[string]string

// ActionFlags toggles the per-field side actions a renderer may offer.
type ActionFlags struct {
	Comment bool `json:"comment,omitempty"`
	Camera  bool `json:"camera,omitempty"`
	Flag    bool `json:"flag,omitempty"`
}

// Validations are optional per-field rules beyond is_required.
// Authors write the numeric limits either as strings or numbers.
type Validations struct {
	Pattern   string      `json:"pattern,omitempty"`
	MinLength LooseString `json:"minLength,omitempty"`
	MaxLength LooseString `json:"maxLength,omitempty"`
	MinDate   string      `json:"minDate,omitempty"`
	MaxDate   string      `json:"maxDate,omitempty"`
	MaxSize   LooseString `json:"maxSize,omitempty"`
}

// LooseString accepts a JSON string, number or boolean and keeps its text.
type LooseString string

func (s *LooseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = LooseString(str)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	*s = LooseString(data)
	return nil
}

// Int returns the value as an integer.
func (s LooseString) Int() (int, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(string(s), 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}

// Field is the attribute set shared by every data-entry widget.
type Field struct {
	Label           string       `json:"label,omitempty"`
	FieldName       string       `json:"field_name"`
	IsRequired      bool         `json:"is_required,omitempty"`
	ShowLabel       *bool        `json:"show_label,omitempty"`
	PlaceholderText string       `json:"placeholder_text,omitempty"`
	Validations     *Validations `json:"validations,omitempty"`
	Actions         *ActionFlags `json:"actions,omitempty"`
}

func (f *Field) fieldName() string { return f.FieldName }
func (f *Field) label() string     { return f.Label }

type HeaderAttrs struct {
	Text  string `json:"text,omitempty"`
	Level int    `json:"level,omitempty"`
	Style Style  `json:"style,omitempty"`
}

type ParagraphAttrs struct {
	Text  string `json:"text"`
	Style Style  `json:"style,omitempty"`
}

type TextAttrs struct {
	Field
	DefaultValue string `json:"default_value,omitempty"`
	Style        Style  `json:"style,omitempty"`
}

type TextareaAttrs struct {
	Field
	DefaultValue string `json:"default_value,omitempty"`
	Style        Style  `json:"style,omitempty"`
}

// SelectAttrs describes a select box. Options come from an external data
// list named by DataListID, or inline from Options.
type SelectAttrs struct {
	Field
	DataListID string   `json:"dataListId,omitempty"`
	Options    []string `json:"options,omitempty"`
}

type FileAttrs struct {
	Field
}

type DateAttrs struct {
	Field
}

type SignatureAttrs struct {
	Field
	PenColor string `json:"pen_color,omitempty"`
}

type MapAttrs struct {
	Field
	DefaultLat *float64 `json:"default_lat,omitempty"`
	DefaultLng *float64 `json:"default_lng,omitempty"`
}

type QRScannerAttrs struct {
	Field
}

type LinkAttrs struct {
	Label      string       `json:"label,omitempty"`
	URL        string       `json:"url"`
	LinkText   string       `json:"link_text,omitempty"`
	ShowLabel  *bool        `json:"show_label,omitempty"`
	IsRequired bool         `json:"is_required,omitempty"`
	Actions    *ActionFlags `json:"actions,omitempty"`
}

func (a *LinkAttrs) label() string { return a.Label }

// CalculatedAttrs is a derived value: Formula evaluated over Dependencies.
type CalculatedAttrs struct {
	Label        string   `json:"label,omitempty"`
	FieldName    string   `json:"field_name"`
	Formula      string   `json:"formula"`
	Dependencies []string `json:"dependencies"`
	Style        Style    `json:"style,omitempty"`
}

func (a *CalculatedAttrs) fieldName() string { return a.FieldName }
func (a *CalculatedAttrs) label() string     { return a.Label }

// Condition compares the current value of Field against Value.
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// ConditionAttrs gates Children on Condition.
type ConditionAttrs struct {
	Label     string    `json:"label,omitempty"`
	Condition Condition `json:"condition"`
	Children  []*Node   `json:"-"`
}

func (a *ConditionAttrs) label() string { return a.Label }

// Template is the element list every repeater row is built from.
type Template struct {
	Type     string  `json:"type,omitempty"`
	Elements []*Node `json:"-"`
}

type RepeaterAttrs struct {
	Label     string   `json:"label,omitempty"`
	FieldName string   `json:"field_name"`
	Template  Template `json:"template"`
	AddText   string   `json:"addRowText,omitempty"`
}

func (a *RepeaterAttrs) fieldName() string { return a.FieldName }
func (a *RepeaterAttrs) label() string     { return a.Label }

type TableStaticAttrs struct {
	Label   string     `json:"label,omitempty"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows,omitempty"`
}

func (a *TableStaticAttrs) label() string { return a.Label }

type TableDynamicAttrs struct {
	Label      string   `json:"label,omitempty"`
	FieldName  string   `json:"field_name"`
	Columns    []string `json:"columns"`
	AddRowText string   `json:"addRowText,omitempty"`
}

func (a *TableDynamicAttrs) fieldName() string { return a.FieldName }
func (a *TableDynamicAttrs) label() string     { return a.Label }

// TimespanAttrs names the two time fields a duration is derived from.
// Empty names fall back to start_time and end_time.
type TimespanAttrs struct {
	Label      string `json:"label,omitempty"`
	FieldName  string `json:"field_name"`
	StartField string `json:"start_field,omitempty"`
	EndField   string `json:"end_field,omitempty"`
	Style      Style  `json:"style,omitempty"`
}

func (a *TimespanAttrs) fieldName() string { return a.FieldName }
func (a *TimespanAttrs) label() string     { return a.Label }

// Start returns the start field name.
func (a *TimespanAttrs) Start() string {
	if a.StartField == "" {
		return "start_time"
	}
	return a.StartField
}

// End returns the end field name.
func (a *TimespanAttrs) End() string {
	if a.EndField == "" {
		return "end_time"
	}
	return a.EndField
}

type LockAttrs struct {
	Label     string `json:"label,omitempty"`
	FieldName string `json:"field_name"`
	Value     any    `json:"value"`
	ReadOnly  bool   `json:"readOnly,omitempty"`
}

func (a *LockAttrs) fieldName() string { return a.FieldName }
func (a *LockAttrs) label() string     { return a.Label }

type PageBreakAttrs struct{}

type AutoIncrementAttrs struct {
	Label      string  `json:"label,omitempty"`
	FieldName  string  `json:"field_name"`
	Start      float64 `json:"start"`
	Step       float64 `json:"step"`
	ShowLabel  *bool   `json:"show_label,omitempty"`
	IsRequired bool    `json:"is_required,omitempty"`
	ReadOnly   bool    `json:"readOnly,omitempty"`
	Style      Style   `json:"style,omitempty"`
}

func (a *AutoIncrementAttrs) fieldName() string { return a.FieldName }
func (a *AutoIncrementAttrs) label() string     { return a.Label }

func (*HeaderAttrs) Kind() Kind        { return KindHeader }
func (*ParagraphAttrs) Kind() Kind     { return KindParagraph }
func (*TextAttrs) Kind() Kind          { return KindText }
func (*TextareaAttrs) Kind() Kind      { return KindTextarea }
func (*SelectAttrs) Kind() Kind        { return KindSelect }
func (*FileAttrs) Kind() Kind          { return KindFile }
func (*DateAttrs) Kind() Kind          { return KindDate }
func (*SignatureAttrs) Kind() Kind     { return KindSignature }
func (*MapAttrs) Kind() Kind           { return KindMap }
func (*QRScannerAttrs) Kind() Kind     { return KindQRScanner }
func (*LinkAttrs) Kind() Kind          { return KindLink }
func (*CalculatedAttrs) Kind() Kind    { return KindCalculated }
func (*ConditionAttrs) Kind() Kind     { return KindCondition }
func (*RepeaterAttrs) Kind() Kind      { return KindRepeater }
func (*TableStaticAttrs) Kind() Kind   { return KindTableStatic }
func (*TableDynamicAttrs) Kind() Kind  { return KindTableDynamic }
func (*TimespanAttrs) Kind() Kind      { return KindTimespan }
func (*LockAttrs) Kind() Kind          { return KindLock }
func (*PageBreakAttrs) Kind() Kind     { return KindPageBreak }
func (*AutoIncrementAttrs) Kind() Kind { return KindAutoIncrement }

// newAttributes returns an empty record for k.
func newAttributes(k Kind) Attributes {
	switch k {
	case KindHeader:
		return &HeaderAttrs{}
	case KindParagraph:
		return &ParagraphAttrs{}
	case KindText:
		return &TextAttrs{}
	case KindTextarea:
		return &TextareaAttrs{}
	case KindSelect:
		return &SelectAttrs{}
	case KindFile:
		return &FileAttrs{}
	case KindDate:
		return &DateAttrs{}
	case KindSignature:
		return &SignatureAttrs{}
	case KindMap:
		return &MapAttrs{}
	case KindQRScanner:
		return &QRScannerAttrs{}
	case KindLink:
		return &LinkAttrs{}
	case KindCalculated:
		return &CalculatedAttrs{}
	case KindCondition:
		return &ConditionAttrs{}
	case KindRepeater:
		return &RepeaterAttrs{}
	case KindTableStatic:
		return &TableStaticAttrs{}
	case KindTableDynamic:
		return &TableDynamicAttrs{}
	case KindTimespan:
		return &TimespanAttrs{}
	case KindLock:
		return &LockAttrs{}
	case KindPageBreak:
		return &PageBreakAttrs{}
	case KindAutoIncrement:
		return &AutoIncrementAttrs{}
	}
	return nil
}
