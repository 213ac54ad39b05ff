package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "SheetQueue/internal/errors"
	"SheetQueue/internal/table"
)

func mustTable(t *testing.T, header []string, rows ...[]any) *table.Table {
	t.Helper()
	tbl, err := table.New(header, rows)
	require.NoError(t, err)
	return tbl
}

func TestNextReturnsFirstRowNotDone(t *testing.T) {
	tbl := mustTable(t, []string{"Id", "Status", "Title"},
		[]any{1.0, "done", "a"},
		[]any{2.0, "DONE", "b"},
		[]any{3.0, "in progress", "c"},
		[]any{4.0, nil, "d"},
	)

	sel, err := Next(tbl, "", "")
	require.NoError(t, err)
	require.True(t, sel.Found)
	assert.Equal(t, 2, sel.Row.Index())
	assert.Equal(t, map[string]any{"Id": 3.0, "Status": "in progress", "Title": "c"}, sel.Row.Map())

	again, err := Next(tbl, "Status", "done")
	require.NoError(t, err)
	assert.Equal(t, sel.Row.Index(), again.Row.Index(), "selection is deterministic")
}

func TestNextStatusComparison(t *testing.T) {
	cases := []struct {
		name   string
		status any
		found  bool
	}{
		{"empty", nil, true},
		{"blank string", "", true},
		{"lower", "done", false},
		{"mixed case", "Done", false},
		{"surrounding spaces are significant", " done ", true},
		{"other value", "pending", true},
		{"numeric", 1.0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sel, err := Next(mustTable(t, []string{"Id", "Status"}, []any{"1", tc.status}), "Status", "done")
			require.NoError(t, err)
			assert.Equal(t, tc.found, sel.Found)
		})
	}
}

func TestNextNothingEligible(t *testing.T) {
	empty := mustTable(t, []string{"Id", "Status"})
	sel, err := Next(empty, "Status", "done")
	require.NoError(t, err)
	assert.False(t, sel.Found)

	allDone := mustTable(t, []string{"Id", "Status"}, []any{"1", "done"}, []any{"2", "Done"})
	sel, err = Next(allDone, "Status", "done")
	require.NoError(t, err)
	assert.False(t, sel.Found)

	sel, err = Next(nil, "Status", "done")
	require.NoError(t, err)
	assert.False(t, sel.Found)
}

func TestNextMissingStatusColumn(t *testing.T) {
	_, err := Next(mustTable(t, []string{"Id", "State"}, []any{"1", ""}), "Status", "done")
	require.Error(t, err)
	assert.Equal(t, xerrors.CodeSchemaError, xerrors.CodeOf(err))

	// 列名区分大小写。
	_, err = Next(mustTable(t, []string{"Id", "status"}, []any{"1", ""}), "Status", "done")
	assert.Equal(t, xerrors.CodeSchemaError, xerrors.CodeOf(err))
}

func TestCount(t *testing.T) {
	tbl := mustTable(t, []string{"Id", "Status"},
		[]any{"1", "done"},
		[]any{"2", nil},
		[]any{"3", "DONE"},
		[]any{"4", "later"},
	)
	stats, err := Count(tbl, "", "")
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 4, Done: 2, Pending: 2}, stats)

	_, err = Count(mustTable(t, []string{"Id"}), "Status", "done")
	assert.Equal(t, xerrors.CodeSchemaError, xerrors.CodeOf(err))
}
