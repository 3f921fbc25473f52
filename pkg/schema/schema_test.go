package schema

import (
	"errors"
	"os"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadSample(t *testing.T) *Document {
	t.Helper()
	data, err := os.ReadFile("../../testdata/sample.json")
	require.NoError(t, err)
	doc, err := Decode(data)
	require.NoError(t, err)
	return doc
}

func TestDecode_Sample(t *testing.T) {
	doc := loadSample(t)

	assert.Equal(t, "user-details", doc.ID)
	assert.Equal(t, "aman", doc.AuditHistory.UserName)
	require.Len(t, doc.Components, 1)
	sec := doc.Components[0]
	assert.Equal(t, "first Section", sec.Title)
	require.Len(t, sec.Elements, 15)

	kinds := make([]Kind, len(sec.Elements))
	for i, n := range sec.Elements {
		kinds[i] = n.Kind
	}
	assert.Equal(t, []Kind{
		KindHeader, KindText, KindParagraph, KindText, KindAutoIncrement, KindText,
		KindCalculated, KindCondition, KindRepeater, KindTableStatic, KindPageBreak,
		KindTableDynamic, KindTimespan, KindLock, KindPageBreak,
	}, kinds)

	name := sec.Elements[1].Attributes.(*TextAttrs)
	assert.Equal(t, "full_name", name.FieldName)
	assert.True(t, name.IsRequired)
	require.NotNil(t, name.Actions)
	assert.True(t, name.Actions.Comment)

	calc := sec.Elements[6].Attributes.(*CalculatedAttrs)
	assert.Equal(t, "amount + quantity", calc.Formula)
	assert.Equal(t, []string{"amount", "quantity"}, calc.Dependencies)

	cond := sec.Elements[7].Attributes.(*ConditionAttrs)
	assert.Equal(t, Condition{Field: "full_name", Operator: "!=", Value: ""}, cond.Condition)
	require.Len(t, cond.Children, 1)
	assert.Equal(t, "comments", cond.Children[0].FieldName())

	rep := sec.Elements[8].Attributes.(*RepeaterAttrs)
	require.Len(t, rep.Template.Elements, 2)
	assert.Equal(t, "role", rep.Template.Elements[1].FieldName())

	ts := sec.Elements[12].Attributes.(*TimespanAttrs)
	assert.Equal(t, "start_time", ts.Start())
	assert.Equal(t, "end_time", ts.End())

	auto := sec.Elements[4].Attributes.(*AutoIncrementAttrs)
	assert.Equal(t, 1.0, auto.Start)
	assert.Equal(t, 1.0, auto.Step)

	require.NotNil(t, doc.FormConfig)
	assert.Equal(t, "full_name", doc.FormConfig.SPParameters["@FullName"])
}

func TestDecode_UnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"components":[{"title":"s","elements":[
		{"type":"text","attributes":{"field_name":"a"}},
		{"type":"slider","attributes":{"field_name":"b"}}
	]}]}`))
	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, CodeUnknownType, se.Code)
	assert.Equal(t, "components[0].elements[1].type", se.Path)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestDecode_MissingAttributes(t *testing.T) {
	tests := []struct {
		name string
		node string
		path string
	}{
		{"text without field_name", `{"type":"text","attributes":{"label":"x"}}`, "$.attributes.field_name"},
		{"blank field_name", `{"type":"textarea","attributes":{"field_name":"  "}}`, "$.attributes.field_name"},
		{"dynamic table without columns", `{"type":"table-dynamic","attributes":{"field_name":"t"}}`, "$.attributes.columns"},
		{"static table without columns", `{"type":"table-static","attributes":{}}`, "$.attributes.columns"},
		{"calculated without formula", `{"type":"calculated","attributes":{"field_name":"c","dependencies":[]}}`, "$.attributes.formula"},
		{"calculated without dependencies", `{"type":"calculated","attributes":{"field_name":"c","formula":"1"}}`, "$.attributes.dependencies"},
		{"condition without condition", `{"type":"condition","attributes":{"children":[]}}`, "$.attributes.condition"},
		{"condition without field", `{"type":"condition","attributes":{"condition":{"operator":"=="},"children":[]}}`, "$.attributes.condition.field"},
		{"condition without children", `{"type":"condition","attributes":{"condition":{"field":"a","operator":"=="}}}`, "$.attributes.children"},
		{"repeater without template", `{"type":"repeater","attributes":{"field_name":"r"}}`, "$.attributes.template"},
		{"lock without value", `{"type":"lock","attributes":{"field_name":"l"}}`, "$.attributes.value"},
		{"null attributes", `{"type":"text","attributes":null}`, "$.attributes.field_name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeNode([]byte(tt.node))
			var se *Error
			require.True(t, errors.As(err, &se), "got %v", err)
			assert.Equal(t, CodeMissingAttribute, se.Code)
			assert.Equal(t, tt.path, se.Path)
		})
	}
}

func TestDecode_NestedErrorPath(t *testing.T) {
	_, err := Decode([]byte(`{"components":[{"title":"s","elements":[
		{"type":"repeater","attributes":{"field_name":"r","template":{"elements":[
			{"type":"condition","attributes":{"condition":{"field":"a","operator":"=="},"children":[
				{"type":"bogus","attributes":{}}
			]}}
		]}}}
	]}]}`))
	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "components[0].elements[0].attributes.template.elements[0].attributes.children[0].type", se.Path)
}

func TestDecode_KindSpellings(t *testing.T) {
	for _, typ := range []string{"auto-increment", "AUTO_INCREMENT", "Auto_Increment"} {
		n, err := DecodeNode([]byte(`{"type":"` + typ + `","attributes":{"field_name":"n","start":5,"step":2}}`))
		require.NoError(t, err, typ)
		assert.Equal(t, KindAutoIncrement, n.Kind)
	}
	n, err := DecodeNode([]byte(`{"type":"Select","multiselect":true,"attributes":{"field_name":"s","options":["a","b"]}}`))
	require.NoError(t, err)
	assert.Equal(t, KindSelect, n.Kind)
	assert.True(t, n.Multiselect)
}

func TestDecode_ExtraAttributesKept(t *testing.T) {
	n, err := DecodeNode([]byte(`{"type":"text","attributes":{"field_name":"a","tooltip":"hi","style":{"color":"red"}}}`))
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`"hi"`), n.Extra["tooltip"])
	_, styled := n.Extra["style"]
	assert.False(t, styled)

	out, err := json.Marshal(n)
	require.NoError(t, err)
	var back map[string]any
	require.NoError(t, json.Unmarshal(out, &back))
	attrs := back["attributes"].(map[string]any)
	assert.Equal(t, "hi", attrs["tooltip"])
	assert.Equal(t, "text", back["type"])
}

func TestDecode_ValidationsAcceptNumbersAndStrings(t *testing.T) {
	n, err := DecodeNode([]byte(`{"type":"text","attributes":{"field_name":"a","validations":{"minLength":"2","maxLength":10}}}`))
	require.NoError(t, err)
	v := n.Attributes.(*TextAttrs).Validations
	require.NotNil(t, v)
	minLen, ok := v.MinLength.Int()
	assert.True(t, ok)
	assert.Equal(t, 2, minLen)
	maxLen, ok := v.MaxLength.Int()
	assert.True(t, ok)
	assert.Equal(t, 10, maxLen)
}

func TestDecode_ParseError(t *testing.T) {
	_, err := Decode([]byte(`{"components": [`))
	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, CodeParse, se.Code)
}

func TestSectionKey(t *testing.T) {
	assert.Equal(t, "work_log", (&Section{Name: "work_log", Title: "Ignored"}).Key())
	assert.Equal(t, "daily_work_log", (&Section{Title: " Daily Work-Log! "}).Key())
	assert.Equal(t, "", (&Section{Title: "  "}).Key())
}

func TestWalk(t *testing.T) {
	doc := loadSample(t)
	var names []string
	Walk(doc.Components[0].Elements, func(n *Node) bool {
		if name := n.FieldName(); name != "" {
			names = append(names, name)
		}
		return true
	})
	assert.Equal(t, []string{
		"full_name", "amount", "serial_number", "quantity", "total", "comments",
		"team_members", "name", "role", "expenses", "work_time", "admin_note",
	}, names)

	var top []string
	Walk(doc.Components[0].Elements, func(n *Node) bool {
		if name := n.FieldName(); name != "" {
			top = append(top, name)
		}
		return n.Kind != KindRepeater
	})
	assert.NotContains(t, top, "role")
}

func TestErrors_Summary(t *testing.T) {
	es := Errors{
		Errorf("a", CodeDuplicateField, "one"),
		Errorf("b", CodeDanglingRef, "two"),
		Errorf("c", CodeDependencyCycle, "three"),
		Errorf("d", CodeInvalidAttribute, "four"),
	}
	msg := es.Error()
	assert.Contains(t, msg, "duplicate_field at a: one")
	assert.Contains(t, msg, "(total 4)")
	assert.NotContains(t, msg, "four")

	var err error = es
	assert.ErrorIs(t, err, ErrInvalid)
	got, ok := AsErrors(err)
	require.True(t, ok)
	assert.Len(t, got, 4)

	single, ok := AsErrors(Errorf("x", CodeParse, "bad"))
	require.True(t, ok)
	assert.Len(t, single, 1)
}
