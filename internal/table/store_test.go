package table

import (
	"context"
	stdErrors "errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "SheetQueue/internal/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestCSVLoadAndSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.csv")
	writeFile(t, path, "\xEF\xBB\xBFId,Status,Title,\n1,,first\n2,done,\"second, quoted\"\n")

	store := NewFileStore()
	ctx := context.Background()

	tbl, err := store.Load(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Id", "Status", "Title"}, tbl.Header())
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, []any{"1", nil, "first"}, tbl.Row(0).Values())
	assert.Equal(t, []any{"2", "done", "second, quoted"}, tbl.Row(1).Values())

	require.NoError(t, tbl.Set(0, "Status", "Done"))
	require.NoError(t, store.Save(ctx, path, tbl))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Id,Status,Title\n1,Done,first\n2,done,\"second, quoted\"\n", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), "save keeps the original mode")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestTSVUsesTabs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.tsv")
	writeFile(t, path, "Id\tStatus\n1\tdone\n")

	tbl, err := NewFileStore().Load(context.Background(), path)
	require.NoError(t, err)
	v, _ := tbl.Value(0, "Status")
	assert.Equal(t, "done", v)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore()
	ctx := context.Background()

	malformed := filepath.Join(dir, "bad.csv")
	writeFile(t, malformed, "Id,Status\n1,\"unterminated\n")
	empty := filepath.Join(dir, "empty.csv")
	writeFile(t, empty, "")
	blankHeader := filepath.Join(dir, "blank.csv")
	writeFile(t, blankHeader, ",,\n1,2\n")
	notWorkbook := filepath.Join(dir, "fake.xlsx")
	writeFile(t, notWorkbook, "not a zip")
	unknown := filepath.Join(dir, "tasks.json")
	writeFile(t, unknown, "{}")
	folder := filepath.Join(dir, "folder.csv")
	require.NoError(t, os.Mkdir(folder, 0o755))

	cases := []struct {
		name     string
		location string
		code     xerrors.Code
	}{
		{"missing file", filepath.Join(dir, "missing.csv"), xerrors.CodeNotFound},
		{"malformed csv", malformed, xerrors.CodeParseError},
		{"empty file", empty, xerrors.CodeSchemaError},
		{"blank header", blankHeader, xerrors.CodeSchemaError},
		{"corrupt workbook", notWorkbook, xerrors.CodeParseError},
		{"unknown extension", unknown, xerrors.CodeInvalidArgument},
		{"directory", folder, xerrors.CodeInvalidArgument},
		{"empty location", "  ", xerrors.CodeInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := store.Load(ctx, tc.location)
			require.Error(t, err)
			assert.Equal(t, tc.code, xerrors.CodeOf(err), err.Error())
		})
	}
}

func TestRootDirRestriction(t *testing.T) {
	root := t.TempDir()
	inside := filepath.Join(root, "tasks.csv")
	writeFile(t, inside, "Id,Status\n1,\n")
	outside := filepath.Join(t.TempDir(), "tasks.csv")
	writeFile(t, outside, "Id,Status\n1,\n")

	store := NewFileStore(WithRootDir(root))
	ctx := context.Background()

	_, err := store.Load(ctx, inside)
	require.NoError(t, err)

	_, err = store.Load(ctx, outside)
	assert.Equal(t, xerrors.CodeForbidden, xerrors.CodeOf(err))

	_, err = store.Load(ctx, filepath.Join(root, "..", filepath.Base(filepath.Dir(outside)), "tasks.csv"))
	assert.Equal(t, xerrors.CodeForbidden, xerrors.CodeOf(err))

	_, _, err = store.Open(ctx, outside)
	assert.Equal(t, xerrors.CodeForbidden, xerrors.CodeOf(err))
}

func TestOpenReturnsRawBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.csv")
	writeFile(t, path, "Id,Status\n1,\n")

	f, info, err := NewFileStore().Open(context.Background(), path)
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "Id,Status\n1,\n", string(data))
	assert.EqualValues(t, len(data), info.Size())
}

func TestLoadHonoursCancelledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.csv")
	writeFile(t, path, "Id,Status\n1,\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFileStore().Load(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteFileAtomicKeepsOriginalOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.csv")
	writeFile(t, path, "Id,Status\n1,\n")

	boom := stdErrors.New("boom")
	err := writeFileAtomic(path, 0o644, func(w io.Writer) error {
		_, _ = w.Write([]byte("Id,Sta"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Id,Status\n1,\n", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSaveFailureIsWriteError(t *testing.T) {
	dir := t.TempDir()
	tbl, err := New([]string{"Id", "Status"}, [][]any{{"1", nil}})
	require.NoError(t, err)

	err = NewFileStore().Save(context.Background(), filepath.Join(dir, "missing-dir", "tasks.csv"), tbl)
	require.Error(t, err)
	assert.Equal(t, xerrors.CodeWriteError, xerrors.CodeOf(err))
}
