package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "SheetQueue/internal/errors"
	"SheetQueue/internal/lock"
	"SheetQueue/internal/observability/metrics"
	"SheetQueue/internal/table"
	"SheetQueue/internal/task"
)

type fixture struct {
	handler http.Handler
	dir     string
}

func newFixture(t *testing.T, opts ...table.Option) fixture {
	t.Helper()
	dir := t.TempDir()
	store := table.NewFileStore(opts...)
	svc, err := task.NewService(store, lock.NewCoordinator(lock.WithCrossProcess(true)), nil)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	rec, err := metrics.New("api_test", reg)
	require.NoError(t, err)
	srv := NewServer(":0", svc, store, WithMetrics(rec, reg, "/metrics"))
	return fixture{handler: srv.Handler(), dir: dir}
}

func (f fixture) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (f fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func query(path string) string {
	return "?path=" + url.QueryEscape(path)
}

func TestRoot(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sheetqueue is running", rec.Body.String())

	rec = f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestQueueLifecycle(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "tasks.csv", "Id,Status,Title\n1,,first\n2,done,second\n")

	rec := f.do(t, http.MethodGet, "/next-row"+query(path), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"Id": "1", "Status": nil, "Title": "first"}, decode(t, rec))

	body, _ := json.Marshal(map[string]any{"path": path, "id": 1})
	rec = f.do(t, http.MethodPost, "/mark-done", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"ok","updated_id":1}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/next-row"+query(path), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"message": NoRowsMessage}, decode(t, rec))

	rec = f.do(t, http.MethodGet, "/stats"+query(path), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total":2,"done":2,"pending":0}`, rec.Body.String())

	// 再次标记同一行仍然成功。
	body, _ = json.Marshal(map[string]any{"path": path, "id": "1"})
	rec = f.do(t, http.MethodPost, "/mark-done", string(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","updated_id":"1"}`, rec.Body.String())
}

func TestMarkDoneUnknownID(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "tasks.csv", "Id,Status\n1,\n")
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]any{"path": path, "id": "missing"})
	rec := f.do(t, http.MethodPost, "/mark-done", string(body))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Id not found", decode(t, rec)["error"])

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestErrorStatusMapping(t *testing.T) {
	root := t.TempDir()
	f := newFixture(t, table.WithRootDir(root))
	inside := filepath.Join(root, "noid.csv")
	require.NoError(t, os.WriteFile(inside, []byte("Key,Status\n1,\n"), 0o644))
	outside := f.write(t, "outside.csv", "Id,Status\n1,\n")

	cases := []struct {
		name   string
		method string
		target string
		body   string
		status int
		code   xerrors.Code
	}{
		{"missing path", http.MethodGet, "/next-row", "", http.StatusBadRequest, xerrors.CodeInvalidArgument},
		{"missing file", http.MethodGet, "/next-row" + query(filepath.Join(root, "nope.csv")), "", http.StatusNotFound, xerrors.CodeNotFound},
		{"schema", http.MethodGet, "/next-row" + query(inside), "", http.StatusUnprocessableEntity, xerrors.CodeSchemaError},
		{"outside root", http.MethodGet, "/next-row" + query(outside), "", http.StatusForbidden, xerrors.CodeForbidden},
		{"get-file outside root", http.MethodGet, "/get-file" + query(outside), "", http.StatusForbidden, xerrors.CodeForbidden},
		{"bad body", http.MethodPost, "/mark-done", "{not json", http.StatusBadRequest, xerrors.CodeInvalidArgument},
		{"missing id", http.MethodPost, "/mark-done", `{"path":"` + inside + `"}`, http.StatusBadRequest, xerrors.CodeInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, tc.method, tc.target, tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, string(tc.code), decode(t, rec)["code"])
		})
	}
}

func TestGetFileStreamsRawBytes(t *testing.T) {
	f := newFixture(t)
	payload := []byte{0x89, 'P', 'N', 'G', 0x00, 0x01}
	path := filepath.Join(f.dir, "design.png")
	require.NoError(t, os.WriteFile(path, payload, 0o644))

	rec := f.do(t, http.MethodGet, "/get-file"+query(path), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, payload, rec.Body.Bytes())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	rec = f.do(t, http.MethodGet, "/get-file"+query(filepath.Join(f.dir, "nope.png")), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSAndRequestID(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "chrome-extension://abcdef")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/", "")

	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `api_test_http_requests_total{code="200",handler="/",method="GET"} 1`)
}

type stubQueue struct {
	err error
}

func (s stubQueue) Next(context.Context, string) (task.Selection, error) {
	return task.Selection{}, s.err
}

func (s stubQueue) MarkDone(context.Context, string, any) (task.Completion, error) {
	return task.Completion{}, s.err
}

func (s stubQueue) Stats(context.Context, string) (task.Stats, error) {
	return task.Stats{}, s.err
}

func TestLockTimeoutIsServiceUnavailable(t *testing.T) {
	srv := NewServer(":0", stubQueue{err: xerrors.New(xerrors.CodeLockTimeout, "")}, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mark-done", strings.NewReader(`{"path":"a.csv","id":1}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/get-file?path=a.csv", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStatusFor(t *testing.T) {
	cases := map[xerrors.Code]int{
		xerrors.CodeInvalidArgument: http.StatusBadRequest,
		xerrors.CodeForbidden:       http.StatusForbidden,
		xerrors.CodeNotFound:        http.StatusNotFound,
		task.CodeIDNotFound:         http.StatusNotFound,
		xerrors.CodeParseError:      http.StatusUnprocessableEntity,
		xerrors.CodeSchemaError:     http.StatusUnprocessableEntity,
		xerrors.CodeLockTimeout:     http.StatusServiceUnavailable,
		xerrors.CodeWriteError:      http.StatusInternalServerError,
		xerrors.CodeLockFailure:     http.StatusInternalServerError,
		xerrors.CodeUnknown:         http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, StatusFor(code), code)
	}
}

func TestUnknownRouteUsesErrorBody(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(xerrors.CodeNotFound), decode(t, rec)["code"])

	rec = f.do(t, http.MethodGet, "/mark-done", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, string(xerrors.CodeInvalidArgument), decode(t, rec)["code"])
}
