package form

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlovans/formtree/pkg/schema"
)

func mustDecode(t *testing.T, text string) *schema.Document {
	t.Helper()
	doc, err := schema.Decode([]byte(text))
	require.NoError(t, err)
	return doc
}

func errorCodes(t *testing.T, err error) []string {
	t.Helper()
	errs, ok := schema.AsErrors(err)
	require.True(t, ok, "not a schema error: %v", err)
	codes := make([]string, len(errs))
	for i, e := range errs {
		codes[i] = e.Code
	}
	return codes
}

func TestCompile_SchemaErrors(t *testing.T) {
	tests := []struct {
		name     string
		elements string
		code     string
		path     string
	}{
		{
			name: "duplicate field",
			elements: `{"type":"text","attributes":{"field_name":"a"}},
				{"type":"textarea","attributes":{"field_name":"a"}}`,
			code: schema.CodeDuplicateField,
			path: "components[0].elements[1].attributes.field_name",
		},
		{
			name: "duplicate under a condition",
			elements: `{"type":"text","attributes":{"field_name":"a"}},
				{"type":"condition","attributes":{"condition":{"field":"a","operator":"==","value":"x"},"children":[
					{"type":"text","attributes":{"field_name":"a"}}
				]}}`,
			code: schema.CodeDuplicateField,
			path: "components[0].elements[1].attributes.children[0].attributes.field_name",
		},
		{
			name: "timespan endpoint clashes with a field",
			elements: `{"type":"text","attributes":{"field_name":"clock_in"}},
				{"type":"timespan","attributes":{"field_name":"shift","start_field":"clock_in","end_field":"clock_out"}}`,
			code: schema.CodeDuplicateField,
			path: "components[0].elements[1].attributes.field_name",
		},
		{
			name:     "calculated depends on unknown field",
			elements: `{"type":"calculated","attributes":{"field_name":"c","formula":"missing * 2","dependencies":["missing"]}}`,
			code:     schema.CodeDanglingRef,
			path:     "components[0].elements[0].attributes.dependencies[0]",
		},
		{
			name: "condition on unknown field",
			elements: `{"type":"condition","attributes":{"condition":{"field":"ghost","operator":"==","value":1},"children":[
					{"type":"text","attributes":{"field_name":"a"}}
				]}}`,
			code: schema.CodeDanglingRef,
			path: "components[0].elements[0].attributes.condition.field",
		},
		{
			name: "calculated fields depending on each other",
			elements: `{"type":"calculated","attributes":{"field_name":"a","formula":"b + 1","dependencies":["b"]}},
				{"type":"calculated","attributes":{"field_name":"b","formula":"a + 1","dependencies":["a"]}}`,
			code: schema.CodeDependencyCycle,
			path: "components[0].elements[0].attributes.field_name",
		},
		{
			name: "condition gating its own input",
			elements: `{"type":"condition","attributes":{"condition":{"field":"x","operator":"!=","value":""},"children":[
					{"type":"text","attributes":{"field_name":"x"}}
				]}}`,
			code: schema.CodeDependencyCycle,
			path: "components[0].elements[0].attributes.condition.field",
		},
		{
			name: "unknown operator",
			elements: `{"type":"text","attributes":{"field_name":"a"}},
				{"type":"condition","attributes":{"condition":{"field":"a","operator":"contains","value":"x"},"children":[]}}`,
			code: schema.CodeInvalidAttribute,
			path: "components[0].elements[1].attributes.condition.operator",
		},
		{
			name:     "timespan endpoints are the same field",
			elements: `{"type":"timespan","attributes":{"field_name":"t","start_field":"at","end_field":"at"}}`,
			code:     schema.CodeInvalidAttribute,
			path:     "components[0].elements[0].attributes.end_field",
		},
		{
			name:     "invalid pattern",
			elements: `{"type":"text","attributes":{"field_name":"a","validations":{"pattern":"[a-"}}}`,
			code:     schema.CodeInvalidAttribute,
			path:     "components[0].elements[0].attributes.validations",
		},
		{
			name:     "invalid date bound",
			elements: `{"type":"date","attributes":{"field_name":"d","validations":{"minDate":"yesterday"}}}`,
			code:     schema.CodeInvalidAttribute,
			path:     "components[0].elements[0].attributes.validations",
		},
		{
			name:     "empty column name",
			elements: `{"type":"table-dynamic","attributes":{"field_name":"t","columns":["a"," "]}}`,
			code:     schema.CodeInvalidAttribute,
			path:     "components[0].elements[0].attributes.columns[1]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := docOf(t, tt.elements)
			_, err := Compile(doc)
			require.Error(t, err)
			assert.ErrorIs(t, err, schema.ErrInvalid)

			errs, ok := schema.AsErrors(err)
			require.True(t, ok)
			require.Len(t, errs, 1, "errors: %v", err)
			assert.Equal(t, tt.code, errs[0].Code)
			assert.Equal(t, tt.path, errs[0].Path)

			assert.Equal(t, err.Error(), Check(doc).Error())
		})
	}
}

func TestCompile_DuplicatePointsAtFirstDeclaration(t *testing.T) {
	_, err := Compile(docOf(t, `
		{"type":"text","attributes":{"field_name":"a"}},
		{"type":"text","attributes":{"field_name":"a"}}
	`))
	errs, ok := schema.AsErrors(err)
	require.True(t, ok)
	require.Len(t, errs, 1)
	assert.Equal(t, "components[0].elements[0].attributes.field_name", errs[0].Related)
}

func TestCompile_CollectsEveryError(t *testing.T) {
	_, err := Compile(docOf(t, `
		{"type":"text","attributes":{"field_name":"a"}},
		{"type":"text","attributes":{"field_name":"a"}},
		{"type":"calculated","attributes":{"field_name":"c","formula":"z","dependencies":["z"]}},
		{"type":"repeater","attributes":{"field_name":"r","template":{"elements":[
			{"type":"text","attributes":{"field_name":"x"}},
			{"type":"text","attributes":{"field_name":"x"}}
		]}}}
	`))
	require.Error(t, err)
	assert.ElementsMatch(t, []string{
		schema.CodeDuplicateField,
		schema.CodeDanglingRef,
		schema.CodeDuplicateField,
	}, errorCodes(t, err))
}

func TestCompile_ScopesAreSeparate(t *testing.T) {
	f, err := Compile(docOf(t, `
		{"type":"text","attributes":{"field_name":"name"}},
		{"type":"repeater","attributes":{"field_name":"people","template":{"elements":[
			{"type":"text","attributes":{"field_name":"name"}}
		]}}},
		{"type":"table-dynamic","attributes":{"field_name":"grid","columns":["name"]}}
	`))
	require.NoError(t, err)
	assert.Contains(t, f.Value(), "name")
}

func TestCompile_RepeatableSectionNeedsKey(t *testing.T) {
	_, err := Compile(mustDecode(t, `{"components":[
		{"title":"  ","repeatable":true,"elements":[{"type":"text","attributes":{"field_name":"a"}}]}
	]}`))
	errs, ok := schema.AsErrors(err)
	require.True(t, ok)
	require.Len(t, errs, 1)
	assert.Equal(t, schema.CodeMissingAttribute, errs[0].Code)
	assert.Equal(t, "components[0].name", errs[0].Path)
}

func TestCompile_NilDocument(t *testing.T) {
	_, err := Compile(nil)
	assert.ErrorIs(t, err, schema.ErrInvalid)

	err = Check(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrInvalid)
	assert.Equal(t, []string{schema.CodeParse}, errorCodes(t, err))
}

func TestCheck_Sample(t *testing.T) {
	assert.NoError(t, Check(sampleDoc(t)))
}

func TestCompile_EveryKind(t *testing.T) {
	f, err := Compile(docOf(t, `
		{"type":"header","attributes":{"text":"Title"}},
		{"type":"paragraph","attributes":{"text":"Intro"}},
		{"type":"text","attributes":{"field_name":"text"}},
		{"type":"textarea","attributes":{"field_name":"textarea"}},
		{"type":"select","attributes":{"field_name":"select","options":["a"]}},
		{"type":"file","attributes":{"field_name":"file"}},
		{"type":"date","attributes":{"field_name":"date"}},
		{"type":"signature","attributes":{"field_name":"signature"}},
		{"type":"map","attributes":{"field_name":"map"}},
		{"type":"qrscanner","attributes":{"field_name":"qr"}},
		{"type":"link","attributes":{"url":"https://example.com"}},
		{"type":"calculated","attributes":{"field_name":"calc","formula":"1 + 1","dependencies":[]}},
		{"type":"condition","attributes":{"condition":{"field":"text","operator":"==","value":"go"},"children":[]}},
		{"type":"repeater","attributes":{"field_name":"rep","template":{"elements":[]}}},
		{"type":"table-static","attributes":{"columns":["a"],"rows":[["1"]]}},
		{"type":"table-dynamic","attributes":{"field_name":"dyn","columns":["a"]}},
		{"type":"timespan","attributes":{"field_name":"span"}},
		{"type":"lock","attributes":{"field_name":"lock","value":42}},
		{"type":"pagebreak","attributes":{}},
		{"type":"auto_increment","attributes":{"field_name":"seq","start":0,"step":1}}
	`))
	require.NoError(t, err)

	v := f.Value()
	assert.Equal(t, 2.0, v["calc"])
	assert.Equal(t, 42.0, v["lock"])
	assert.Equal(t, 0.0, v["seq"])
	for _, name := range []string{"text", "textarea", "select", "file", "date", "signature", "map", "qr", "rep", "dyn", "span", "lock", "seq"} {
		assert.Contains(t, v, name)
	}
}
