package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"

	pkgerrors "AnalysisPlatform/pkg/errors"
)

type recordedRequest struct {
	method   string
	path     string
	passcode string
	auth     string
	form     string
}

// fakeServer эмулирует /api/ce/* и запоминает запросы
type fakeServer struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ce/pause", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/api/ce/info", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pending":2,"inProgress":1,"pauseStatus":"PAUSING"}`))
	})
	mux.HandleFunc("/api/ce/cancel", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if r.FormValue("id") == "gone" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.FormValue("id") == "forbidden" {
			pkgerrors.WriteJSON(w, pkgerrors.New(pkgerrors.ErrForbidden, "Insufficient privileges"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"task":{"id":"` + r.FormValue("id") + `","status":"CANCELED"}}`))
	})
	mux.HandleFunc("/api/ce/cancel_all", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"canceled":3}`))
	})
	mux.HandleFunc("/api/ce/worker_count", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		http.Error(w, "boom", http.StatusBadGateway)
	})
	return mux
}

func (f *fakeServer) record(r *http.Request) {
	_ = r.ParseForm()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, recordedRequest{
		method:   r.Method,
		path:     r.URL.Path,
		passcode: r.Header.Get(passcodeHeader),
		auth:     r.Header.Get("Authorization"),
		form:     r.PostForm.Encode(),
	})
}

func (f *fakeServer) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand(&out)
	root.SetArgs(args)
	cmd, err := root.ExecuteC()
	return out.String(), handleError(err, cmd)
}

func newFakeServer(t *testing.T) (*fakeServer, string) {
	t.Helper()
	fake := &fakeServer{}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)
	return fake, srv.URL
}

func TestPause_SendsPasscode(t *testing.T) {
	fake, url := newFakeServer(t)

	out, err := runCLI(t, "pause", "--server", url, "--passcode", "s3cret", "-o", "json")
	require.NoError(t, err)

	req := fake.last()
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/api/ce/pause", req.path)
	assert.Equal(t, "s3cret", req.passcode)
	assert.Empty(t, req.auth)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "ok", result["status"])
}

func TestStatus_TableOutput(t *testing.T) {
	fake, url := newFakeServer(t)

	out, err := runCLI(t, "status", "--server", url, "--token", "abc")
	require.NoError(t, err)

	req := fake.last()
	assert.Equal(t, http.MethodGet, req.method)
	assert.Equal(t, "Bearer abc", req.auth)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "KEY"))
	assert.Contains(t, lines[2], "inProgress")
	assert.Contains(t, lines[3], "pauseStatus")
	assert.Contains(t, lines[3], "PAUSING")
	assert.Contains(t, lines[4], "pending")
}

func TestStatus_ServerFromEnvironment(t *testing.T) {
	fake, url := newFakeServer(t)
	t.Setenv("CE_ADMIN_SERVER", url)
	t.Setenv("CE_ADMIN_PASSCODE", "from-env")

	out, err := runCLI(t, "status", "-o", "yaml")
	require.NoError(t, err)
	assert.Equal(t, "from-env", fake.last().passcode)

	var result map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(out), &result))
	assert.Equal(t, 2, result["pending"])
}

func TestCancel(t *testing.T) {
	fake, url := newFakeServer(t)

	out, err := runCLI(t, "cancel", "task-1", "--server", url, "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, "id=task-1", fake.last().form)
	assert.Contains(t, out, `"status": "CANCELED"`)

	out, err = runCLI(t, "cancel", "gone", "--server", url, "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "not found"`)

	_, err = runCLI(t, "cancel", "forbidden", "--server", url)
	require.Error(t, err)
	assert.Equal(t, "cancel: Insufficient privileges", err.Error())

	_, err = runCLI(t, "cancel", "--server", url)
	require.Error(t, err)
}

func TestCancelAll_RequiresConfirmation(t *testing.T) {
	fake, url := newFakeServer(t)

	_, err := runCLI(t, "cancel-all", "--server", url)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires --yes")
	assert.Empty(t, fake.requests)

	out, err := runCLI(t, "cancel-all", "--yes", "--server", url, "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"canceled": 3`)
}

func TestClient_NonJSONError(t *testing.T) {
	_, url := newFakeServer(t)

	_, err := runCLI(t, "worker-count", "--server", url)
	require.Error(t, err)
	assert.Equal(t, "worker-count: Internal server error", err.Error())
}

func TestDecodeError_KeepsCode(t *testing.T) {
	fake := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pkgerrors.WriteJSON(w, pkgerrors.New(pkgerrors.ErrConflict, "Submission of reports is paused").WithDetails("submit paused"))
	}))
	defer fake.Close()

	client := NewClient(fake.URL+"/", "", "", 0)
	err := client.Post(t.Context(), "/api/ce/submit", nil, nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrConflict))

	code, ok := pkgerrors.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, pkgerrors.ErrConflict, code)
}

func TestPrintResult_UnknownFormat(t *testing.T) {
	var out bytes.Buffer
	err := printResult(&out, "xml", map[string]interface{}{"a": 1})
	require.Error(t, err)
	assert.Empty(t, out.String())
}
