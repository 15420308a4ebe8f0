package api_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/waabox/pakdeck/internal/adapter"
	"github.com/waabox/pakdeck/internal/adapter/adaptertest"
	"github.com/waabox/pakdeck/internal/api"
	"github.com/waabox/pakdeck/internal/domain"
	"github.com/waabox/pakdeck/internal/engine"
	"github.com/waabox/pakdeck/internal/pipeline"
	"github.com/waabox/pakdeck/internal/scheduler"
	"github.com/waabox/pakdeck/internal/session"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	reg := adapter.NewRegistry()
	reg.Register("npm", &adaptertest.Fake{})
	reg.Register("cargo", adaptertest.Failing("deploy", errors.New("crate exists")))
	eng := engine.New(pipeline.NewRegistry(), reg, session.NewStore(), engine.WithBackoff(scheduler.Backoff{}))
	srv := httptest.NewServer(api.NewRouter(eng, nil))
	t.Cleanup(srv.Close)
	return srv
}

func postDeployment(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/deployments", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

func TestDeployments_Success(t *testing.T) {
	srv := newServer(t)
	resp := postDeployment(t, srv, `{"package":"demo","version":"1.0.0","platforms":["npm"],"pipeline":"quick"}`)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	sess := decode[domain.Session](t, resp)
	if sess.Status != domain.SessionCompleted || sess.PlatformStatus["npm"].Status != domain.PlatformCompleted {
		t.Errorf("unexpected session %+v", sess)
	}
}

func TestDeployments_FailureReturnsSession(t *testing.T) {
	srv := newServer(t)
	resp := postDeployment(t, srv, `{"package":"demo","version":"1.0.0","platforms":["npm","cargo"],"pipeline":"parallel"}`)

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	sess := decode[domain.Session](t, resp)
	if sess.Status != domain.SessionFailed || len(sess.Errors) != 1 {
		t.Errorf("unexpected session %+v", sess)
	}
}

func TestDeployments_ClientErrors(t *testing.T) {
	srv := newServer(t)
	tests := []struct {
		name string
		body string
		want int
		kind string
	}{
		{"unknown pipeline", `{"package":"demo","version":"1.0.0","platforms":["npm"],"pipeline":"nightly"}`, http.StatusNotFound, "PipelineNotFound"},
		{"missing platforms", `{"package":"demo","version":"1.0.0"}`, http.StatusBadRequest, ""},
		{"malformed", `{"package":`, http.StatusBadRequest, ""},
		{"unknown field", `{"pkg":"demo"}`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postDeployment(t, srv, tt.body)
			if resp.StatusCode != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, resp.StatusCode)
			}
			body := decode[map[string]string](t, resp)
			if body["kind"] != tt.kind {
				t.Errorf("expected kind %q, got %q", tt.kind, body["kind"])
			}
		})
	}
}

func TestPackageRoutes(t *testing.T) {
	srv := newServer(t)
	postDeployment(t, srv, `{"package":"@scope/demo","version":"1.0.0","platforms":["npm"],"pipeline":"quick"}`)

	resp, err := http.Get(srv.URL + "/packages/%40scope%2Fdemo/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	status := decode[domain.Session](t, resp)
	if status.Package != "@scope/demo" {
		t.Errorf("expected @scope/demo, got %q", status.Package)
	}

	logsResp, err := http.Get(srv.URL + "/packages/%40scope%2Fdemo/logs")
	if err != nil {
		t.Fatal(err)
	}
	defer logsResp.Body.Close()
	entries := decode[[]engine.LogEntry](t, logsResp)
	if len(entries) != 4 {
		t.Errorf("expected 4 stage entries for quick, got %d", len(entries))
	}

	sessResp, err := http.Get(srv.URL + "/sessions/" + status.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer sessResp.Body.Close()
	if sessResp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for session lookup, got %d", sessResp.StatusCode)
	}
}

func TestStatus_UnknownPackage(t *testing.T) {
	srv := newServer(t)
	resp, err := http.Get(srv.URL + "/packages/ghost/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestCatalogRoutes(t *testing.T) {
	srv := newServer(t)

	resp, err := http.Get(srv.URL + "/platforms")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	platforms := decode[[]string](t, resp)
	if len(platforms) != 2 || platforms[0] != "cargo" {
		t.Errorf("expected [cargo npm], got %v", platforms)
	}

	presp, err := http.Get(srv.URL + "/pipelines")
	if err != nil {
		t.Fatal(err)
	}
	defer presp.Body.Close()
	files := decode[[]pipeline.File](t, presp)
	if len(files) != 3 {
		t.Errorf("expected 3 built-in pipelines, got %d", len(files))
	}

	hresp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer hresp.Body.Close()
	if hresp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", hresp.StatusCode)
	}
}
