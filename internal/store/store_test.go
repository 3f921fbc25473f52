package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlovans/formtree/pkg/form"
	"github.com/dlovans/formtree/pkg/schema"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "file:"+filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func compileForm(t *testing.T, text string) *form.Form {
	t.Helper()
	doc, err := schema.Decode([]byte(text))
	require.NoError(t, err)
	f, err := form.Compile(doc)
	require.NoError(t, err)
	return f
}

func submission(formName string, at time.Time) form.Submission {
	return form.Submission{
		ID:       uuid.NewString(),
		FormName: formName,
		Target:   "usp_save",
		Status:   form.StatusReady,
		Values: map[string]any{
			"full_name": "Alice",
			"total":     7.0,
			"expenses":  []any{map[string]any{"Amount": "12"}},
		},
		Params:      map[string]any{"@FullName": "Alice"},
		SubmittedAt: at,
	}
}

func TestSubmitAndGet(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 9, 30, 0, 123456789, time.UTC)
	sub := submission("user_details", at)

	require.NoError(t, s.Submit(ctx, sub))

	got, err := s.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, got.ID)
	assert.Equal(t, "user_details", got.FormName)
	assert.Equal(t, "usp_save", got.Target)
	assert.Equal(t, form.StatusReady, got.Status)
	assert.Equal(t, sub.Values, got.Values)
	assert.Equal(t, sub.Params, got.Params)
	assert.True(t, at.Equal(got.SubmittedAt), "got %v", got.SubmittedAt)
}

func TestSubmit_DuplicateID(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	sub := submission("f", time.Now())
	require.NoError(t, s.Submit(ctx, sub))
	assert.Error(t, s.Submit(ctx, sub))
}

func TestSubmit_NoParams(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	sub := submission("f", time.Now())
	sub.Params = nil
	require.NoError(t, s.Submit(ctx, sub))

	got, err := s.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Params)
}

func TestGet_NotFound(t *testing.T) {
	s := openTest(t)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 3; i++ {
		sub := submission("a", base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, s.Submit(ctx, sub))
		ids = append(ids, sub.ID)
	}
	require.NoError(t, s.Submit(ctx, submission("b", base.Add(10*time.Hour))))

	got, err := s.List(ctx, "a", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{got[0].ID, got[1].ID, got[2].ID})

	got, err = s.List(ctx, "a", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "b", got[0].FormName)

	got, err = s.List(ctx, "missing", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestList_SubSecondOrder(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	at := time.Date(2025, 1, 1, 12, 0, 5, 0, time.UTC)

	older := submission("c", at)
	newer := submission("c", at.Add(500*time.Millisecond))
	newest := submission("c", at.Add(500*time.Millisecond+time.Nanosecond))
	for _, sub := range []form.Submission{newer, older, newest} {
		require.NoError(t, s.Submit(ctx, sub))
	}

	got, err := s.List(ctx, "c", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{newest.ID, newer.ID, older.ID}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.True(t, got[1].SubmittedAt.Equal(newer.SubmittedAt))
}

func TestStore_IsFormSink(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	doc := `{"id":"note","components":[{"title":"s","elements":[{"type":"text","attributes":{"field_name":"note"}}]}]}`
	f := compileForm(t, doc)
	require.NoError(t, f.SetValue("note", "hello"))

	sub, err := f.Submit(ctx, s)
	require.NoError(t, err)

	got, err := s.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "note", got.FormName)
	assert.Equal(t, map[string]any{"note": "hello"}, got.Values)
}
