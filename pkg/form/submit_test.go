package form

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readySample(t *testing.T) *Form {
	t.Helper()
	f := compileSample(t)
	mustSet(t, f, "full_name", "Alice")
	mustSet(t, f, "amount", "3")
	mustSet(t, f, "quantity", "4")
	require.Equal(t, StatusReady, f.Status())
	return f
}

func TestSubmit_NotReady(t *testing.T) {
	f := compileSample(t)
	called := false
	sink := SinkFunc(func(context.Context, Submission) error {
		called = true
		return nil
	})

	_, err := f.Submit(context.Background(), sink)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotReady)
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs, 3)
	assert.False(t, called)
}

func TestSubmit(t *testing.T) {
	f := readySample(t)

	var got Submission
	s, err := f.Submit(context.Background(), SinkFunc(func(_ context.Context, s Submission) error {
		got = s
		return nil
	}))
	require.NoError(t, err)
	assert.Equal(t, got, s)

	_, err = uuid.Parse(s.ID)
	assert.NoError(t, err)
	assert.Equal(t, "user_details", s.FormName)
	assert.Equal(t, "usp_save_user_details", s.Target)
	assert.Equal(t, StatusReady, s.Status)
	assert.Equal(t, map[string]any{"@FullName": "Alice", "@Total": 7.0}, s.Params)
	assert.Equal(t, 7.0, s.Values["total"])
	assert.Equal(t, "", s.Values["comments"])
	assert.False(t, s.SubmittedAt.IsZero())
}

func TestSubmit_SinkError(t *testing.T) {
	f := readySample(t)
	boom := errors.New("connection refused")

	_, err := f.Submit(context.Background(), SinkFunc(func(context.Context, Submission) error { return boom }))
	assert.ErrorIs(t, err, boom)
}

func TestSubmit_Fallbacks(t *testing.T) {
	doc := mustDecode(t, `{
		"id": "feedback",
		"components": [{"title":"s","elements":[{"type":"text","attributes":{"field_name":"note"}}]}],
		"formConfig": {"saveMethod":"rest_api","apiEndpoint":"https://api.example.com/feedback"}
	}`)
	f, err := Compile(doc)
	require.NoError(t, err)

	s, err := f.Submit(context.Background(), SinkFunc(func(context.Context, Submission) error { return nil }))
	require.NoError(t, err)
	assert.Equal(t, "feedback", s.FormName)
	assert.Equal(t, "https://api.example.com/feedback", s.Target)
	assert.Nil(t, s.Params)
}

func TestReplay_ReproducesValue(t *testing.T) {
	f := readySample(t)
	mustSet(t, f, "comments", "looks good")
	_, err := f.AddRow("team_members")
	require.NoError(t, err)
	mustSet(t, f, "team_members.0.name", "Ann")
	_, err = f.AddRow("expenses")
	require.NoError(t, err)
	mustSet(t, f, "expenses.1.Amount", "12")
	mustSet(t, f, "start_time", "09:00")
	mustSet(t, f, "end_time", "17:30")

	snapshot := f.Value()
	g, err := Replay(sampleDoc(t), snapshot)
	require.NoError(t, err)
	assert.Equal(t, snapshot, g.Value())
	assert.Equal(t, StatusReady, g.Status())

	assert.NoError(t, Verify(sampleDoc(t), snapshot))
}

func TestVerify_AfterRowRemoval(t *testing.T) {
	doc := docOf(t, `
		{"type":"repeater","attributes":{"field_name":"items","template":{"elements":[
			{"type":"auto_increment","attributes":{"field_name":"no","start":1,"step":1}},
			{"type":"text","attributes":{"field_name":"what"}}
		]}}}
	`)
	f, err := Compile(doc)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := f.AddRow("items")
		require.NoError(t, err)
	}
	require.NoError(t, f.RemoveRow("items", 0))
	mustSet(t, f, "items.1.what", "bolts")

	snapshot := f.Value()
	assert.NoError(t, Verify(doc, snapshot))

	g, err := Replay(doc, snapshot)
	require.NoError(t, err)
	assert.Equal(t, snapshot, g.Value())

	_, err = g.AddRow("items")
	require.NoError(t, err)
	rows := g.Value()["items"].([]any)
	assert.Equal(t, 4.0, rows[2].(map[string]any)["no"], "ordinals continue after the highest one")

	snapshot["items"].([]any)[0].(map[string]any)["no"] = 2.5
	var mm MismatchError
	require.ErrorAs(t, Verify(doc, snapshot), &mm)
	assert.Equal(t, "items.0.no", mm[0].Path)
}

func TestReplay_GatedInputsDeclaredFirst(t *testing.T) {
	doc := docOf(t, `
		{"type":"condition","attributes":{"condition":{"field":"mode","operator":"==","value":"custom"},"children":[
			{"type":"text","attributes":{"field_name":"custom_value"}}
		]}},
		{"type":"select","attributes":{"field_name":"mode","options":["default","custom"]}}
	`)
	f, err := Replay(doc, map[string]any{"mode": "custom", "custom_value": "42"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"mode": "custom", "custom_value": "42"}, f.Value())
}

func TestReplay_Errors(t *testing.T) {
	doc := sampleDoc(t)

	_, err := Replay(doc, map[string]any{"nickname": "x"})
	assert.ErrorIs(t, err, ErrUnknownField)

	_, err = Replay(doc, map[string]any{"expenses": "not rows"})
	assert.Error(t, err)

	_, err = Replay(doc, map[string]any{"team_members": []any{map[string]any{"age": 3}}})
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestVerify_Mismatch(t *testing.T) {
	f := readySample(t)
	snapshot := f.Value()
	snapshot["total"] = 99.0
	snapshot["admin_note"] = "edited"

	err := Verify(sampleDoc(t), snapshot)
	var mm MismatchError
	require.True(t, errors.As(err, &mm), "got %v", err)
	assert.Equal(t, MismatchError{
		{Path: "admin_note", Got: "edited", Want: "This section is locked."},
		{Path: "total", Got: 99.0, Want: 7.0},
	}, mm)
	assert.Contains(t, err.Error(), "total: got 99, want 7")
}

func TestVerify_NumericStringsMatch(t *testing.T) {
	f := readySample(t)
	snapshot := f.Value()
	snapshot["total"] = "7"
	assert.NoError(t, Verify(sampleDoc(t), snapshot))
}
