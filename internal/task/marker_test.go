package task

import (
	stdErrors "errors"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "SheetQueue/internal/errors"
)

func TestMarkDoneUpdatesFirstMatchOnly(t *testing.T) {
	tbl := mustTable(t, []string{"Id", "Status", "Title"},
		[]any{"1", "", "a"},
		[]any{"2", nil, "b"},
		[]any{"2", nil, "duplicate"},
	)

	updated, comp, err := MarkDone(tbl, "2", DefaultColumns())
	require.NoError(t, err)
	assert.False(t, comp.AlreadyDone)
	assert.Equal(t, 1, comp.Row.Index())

	v, _ := updated.Value(1, "Status")
	assert.Equal(t, "Done", v)
	v, _ = updated.Value(2, "Status")
	assert.Nil(t, v, "duplicate ids after the first match are untouched")
	v, _ = updated.Value(0, "Status")
	assert.Equal(t, "", v)

	orig, _ := tbl.Value(1, "Status")
	assert.Nil(t, orig, "input table is not modified")
}

func TestMarkDoneIdTypeSkew(t *testing.T) {
	tbl := mustTable(t, []string{"Id", "Status"},
		[]any{7.0, nil},
		[]any{"8", nil},
		[]any{9.5, nil},
		[]any{"9007199254740993", nil},
	)
	cases := []struct {
		name string
		id   any
		row  int
	}{
		{"string against float cell", "7", 0},
		{"int against float cell", 7, 0},
		{"json number", json.Number("7"), 0},
		{"float against string cell", 8.0, 1},
		{"fractional", "9.5", 2},
		{"json number beyond float precision", json.Number("9007199254740993"), 3},
		{"string beyond float precision", "9007199254740993", 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, comp, err := MarkDone(tbl, tc.id, DefaultColumns())
			require.NoError(t, err)
			assert.Equal(t, tc.row, comp.Row.Index())
		})
	}
}

func TestMarkDoneIdempotent(t *testing.T) {
	tbl := mustTable(t, []string{"Id", "Status"}, []any{"1", nil}, []any{"2", nil})

	once, first, err := MarkDone(tbl, "1", DefaultColumns())
	require.NoError(t, err)
	assert.False(t, first.AlreadyDone)

	twice, second, err := MarkDone(once, "1", DefaultColumns())
	require.NoError(t, err)
	assert.True(t, second.AlreadyDone)
	assert.Equal(t, once.Row(0).Values(), twice.Row(0).Values())
	assert.Equal(t, once.Row(1).Values(), twice.Row(1).Values())
}

func TestMarkDoneErrors(t *testing.T) {
	tbl := mustTable(t, []string{"Id", "Status"}, []any{"1", nil})

	_, _, err := MarkDone(tbl, "42", DefaultColumns())
	require.Error(t, err)
	assert.True(t, stdErrors.Is(err, ErrIDNotFound))
	xe, ok := xerrors.From(err)
	require.True(t, ok)
	assert.Equal(t, "Id not found", xe.Message())
	assert.Equal(t, "42", xe.Metadata()["id"])

	for _, id := range []any{nil, ""} {
		_, _, err = MarkDone(tbl, id, DefaultColumns())
		assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
	}

	_, _, err = MarkDone(mustTable(t, []string{"Id"}, []any{"1"}), "1", DefaultColumns())
	assert.Equal(t, xerrors.CodeSchemaError, xerrors.CodeOf(err))
	_, _, err = MarkDone(mustTable(t, []string{"Status"}, []any{""}), "1", DefaultColumns())
	assert.Equal(t, xerrors.CodeSchemaError, xerrors.CodeOf(err))
}

func TestMarkDoneCustomColumns(t *testing.T) {
	tbl := mustTable(t, []string{"Key", "State"}, []any{"a", "open"})
	cols := Columns{ID: "Key", Status: "State", DoneValue: "closed", DoneMarker: "Closed"}

	updated, _, err := MarkDone(tbl, "a", cols)
	require.NoError(t, err)
	v, _ := updated.Value(0, "State")
	assert.Equal(t, "Closed", v)

	sel, err := Next(updated, "State", "closed")
	require.NoError(t, err)
	assert.False(t, sel.Found)
}
