package lint

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func section(elements string) string {
	return `{"components":[{"title":"main","elements":[` + elements + `]}]}`
}

func codes(r *Result) []string {
	out := make([]string, 0, len(r.Issues))
	for _, is := range r.Issues {
		out = append(out, is.Code)
	}
	return out
}

func find(r *Result, code string) *Issue {
	for i := range r.Issues {
		if r.Issues[i].Code == code {
			return &r.Issues[i]
		}
	}
	return nil
}

func TestRun_Sample(t *testing.T) {
	data, err := os.ReadFile("../../testdata/sample.json")
	require.NoError(t, err)

	r, err := Run(string(data))
	require.NoError(t, err)
	assert.True(t, r.Valid)
	assert.Empty(t, r.Issues)
}

func TestRun_DecodeErrorsAreIssues(t *testing.T) {
	r, err := Run(`{"components": [`)
	require.NoError(t, err)
	assert.False(t, r.Valid)
	assert.Equal(t, []string{"parse_error"}, codes(r))

	r, err = Run(section(`{"type":"slider","attributes":{"field_name":"s"}}`))
	require.NoError(t, err)
	assert.False(t, r.Valid)
	require.Len(t, r.Issues, 1)
	assert.Equal(t, "error", r.Issues[0].Severity)
	assert.Equal(t, "unknown_type", r.Issues[0].Code)
	assert.Equal(t, "components[0].elements[0].type", r.Issues[0].Path)
}

func TestDocument_Nil(t *testing.T) {
	r := Document(nil)
	assert.False(t, r.Valid)
	assert.Equal(t, []string{"parse_error"}, codes(r))
}

func TestRun_CompileErrors(t *testing.T) {
	r, err := Run(section(`
		{"type":"text","attributes":{"label":"A","field_name":"a"}},
		{"type":"text","attributes":{"label":"A again","field_name":"a"}},
		{"type":"calculated","attributes":{"label":"C","field_name":"c","formula":"z + 1","dependencies":["z"]}}
	`))
	require.NoError(t, err)
	assert.False(t, r.Valid)
	assert.Equal(t, []string{"duplicate_field", "dangling_reference"}, codes(r))

	dup := find(r, "duplicate_field")
	require.NotNil(t, dup)
	assert.Equal(t, "components[0].elements[1].attributes.field_name", dup.Path)
	assert.True(t, strings.HasSuffix(dup.Message, "(see components[0].elements[0].attributes.field_name)"), dup.Message)
}

func TestRun_Warnings(t *testing.T) {
	tests := []struct {
		name     string
		elements string
		code     string
		path     string
	}{
		{
			name: "formula uses undeclared name",
			elements: `{"type":"text","attributes":{"label":"A","field_name":"a"}},
				{"type":"calculated","attributes":{"label":"C","field_name":"c","formula":"a + b","dependencies":["a"]}}`,
			code: CodeFormula,
			path: "components[0].elements[1].attributes.formula",
		},
		{
			name: "formula does not parse",
			elements: `{"type":"text","attributes":{"label":"A","field_name":"a"}},
				{"type":"calculated","attributes":{"label":"C","field_name":"c","formula":"a +","dependencies":["a"]}}`,
			code: CodeFormula,
			path: "components[0].elements[1].attributes.formula",
		},
		{
			name: "unused dependency",
			elements: `{"type":"text","attributes":{"label":"A","field_name":"a"}},
				{"type":"text","attributes":{"label":"B","field_name":"b"}},
				{"type":"calculated","attributes":{"label":"C","field_name":"c","formula":"a * 2","dependencies":["a","b"]}}`,
			code: CodeUnusedDep,
			path: "components[0].elements[2].attributes.dependencies[1]",
		},
		{
			name: "relational operator on text",
			elements: `{"type":"text","attributes":{"label":"A","field_name":"a"}},
				{"type":"condition","attributes":{"condition":{"field":"a","operator":">","value":"high"},"children":[
					{"type":"text","attributes":{"label":"B","field_name":"b"}}
				]}}`,
			code: CodeOperand,
			path: "components[0].elements[1].attributes.condition.value",
		},
		{
			name: "condition without children",
			elements: `{"type":"text","attributes":{"label":"A","field_name":"a"}},
				{"type":"condition","attributes":{"condition":{"field":"a","operator":"==","value":"x"},"children":[]}}`,
			code: CodeNoChildren,
			path: "components[0].elements[1].attributes.children",
		},
		{
			name:     "dynamic table without columns",
			elements: `{"type":"table-dynamic","attributes":{"label":"T","field_name":"t","columns":[]}}`,
			code:     CodeNoColumns,
			path:     "components[0].elements[0].attributes.columns",
		},
		{
			name:     "select without options",
			elements: `{"type":"select","attributes":{"label":"S","field_name":"s"}}`,
			code:     CodeNoOptions,
			path:     "components[0].elements[0].attributes",
		},
		{
			name:     "auto increment with zero step",
			elements: `{"type":"auto_increment","attributes":{"label":"N","field_name":"n","start":1,"step":0}}`,
			code:     CodeZeroStep,
			path:     "components[0].elements[0].attributes.step",
		},
		{
			name: "nested row field without label",
			elements: `{"type":"repeater","attributes":{"label":"R","field_name":"r","template":{"elements":[
					{"type":"text","attributes":{"field_name":"x"}}
				]}}}`,
			code: CodeNoLabel,
			path: "components[0].elements[0].attributes.template.elements[0].attributes.label",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Run(section(tt.elements))
			require.NoError(t, err)
			assert.True(t, r.Valid, "issues: %+v", r.Issues)
			require.Len(t, r.Issues, 1, "issues: %+v", r.Issues)
			assert.Equal(t, tt.code, r.Issues[0].Code)
			assert.Equal(t, tt.path, r.Issues[0].Path)
		})
	}
}

func TestRun_EmptySection(t *testing.T) {
	r, err := Run(`{"components":[{"title":"Nothing here","elements":[]}]}`)
	require.NoError(t, err)
	assert.True(t, r.Valid)
	require.Len(t, r.Issues, 1)
	assert.Equal(t, CodeEmptySection, r.Issues[0].Code)
	assert.Contains(t, r.Issues[0].Message, "Nothing here")
}

func TestRun_SPParameters(t *testing.T) {
	r, err := Run(`{
		"components":[
			{"title":"main","elements":[
				{"type":"text","attributes":{"label":"Name","field_name":"name"}},
				{"type":"timespan","attributes":{"label":"Shift","field_name":"shift"}},
				{"type":"repeater","attributes":{"label":"Items","field_name":"items","template":{"elements":[
					{"type":"text","attributes":{"label":"Item","field_name":"item"}}
				]}}}
			]},
			{"title":"Visits","repeatable":true,"elements":[
				{"type":"text","attributes":{"label":"Place","field_name":"place"}}
			]}
		],
		"formConfig":{"storedProcedure":"usp_save","spParameters":{
			"@Name":"name","@Start":"start_time","@Visits":"visits","@Item":"item","@Place":"place"
		}}
	}`)
	require.NoError(t, err)
	assert.True(t, r.Valid)

	var params []string
	for _, is := range r.Issues {
		require.Equal(t, CodeSPParameter, is.Code)
		assert.Equal(t, "warning", is.Severity)
		params = append(params, is.Path)
	}
	assert.Equal(t, []string{"formConfig.spParameters.@Item", "formConfig.spParameters.@Place"}, params)
}
