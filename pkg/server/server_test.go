package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mercator-hq/passthrough/internal/upstream"
	"mercator-hq/passthrough/pkg/config"
	"mercator-hq/passthrough/pkg/configstore"
	"mercator-hq/passthrough/pkg/endpoints"
	"mercator-hq/passthrough/pkg/passthrough"
	"mercator-hq/passthrough/pkg/proxy/types"
	"mercator-hq/passthrough/pkg/router"
	"mercator-hq/passthrough/pkg/security/auth"
	"mercator-hq/passthrough/pkg/telemetry/health"
	"mercator-hq/passthrough/pkg/telemetry/metrics"
)

type fixture struct {
	handler   http.Handler
	loader    *passthrough.Loader
	upstream  *upstream.Server
	collector *metrics.Collector
}

func newFixture(t *testing.T, static []endpoints.Definition, mutate func(*config.Config)) *fixture {
	t.Helper()
	up := upstream.NewServer()
	t.Cleanup(up.Close)

	cfg := config.Default()
	cfg.Passthrough.PremiumUser = true
	cfg.Telemetry.Metrics.Enabled = true
	cfg.Telemetry.Metrics.Namespace = "test"
	if mutate != nil {
		mutate(cfg)
	}

	logger := slog.New(slog.DiscardHandler)
	opts := []passthrough.Option{passthrough.WithLogger(logger)}
	guard := auth.NewGuardFromConfig(cfg.Security.Authentication)
	if guard != nil {
		opts = append(opts, passthrough.WithAuthenticator(guard))
	}
	engine := passthrough.NewEngine(cfg.Passthrough, opts...)

	registry := endpoints.NewRegistry(configstore.NewMemoryStore())
	loader := passthrough.NewLoader(engine, registry, router.NewTable(), static)
	if err := loader.Reload(context.Background()); err != nil {
		t.Fatalf("initial reload: %v", err)
	}

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	srvOpts := []Option{WithCollector(collector), WithLogger(logger)}
	if guard != nil {
		srvOpts = append(srvOpts, WithGuard(guard))
	}
	srv := New(cfg, loader, srvOpts...)
	return &fixture{handler: srv.Handler(), loader: loader, upstream: up, collector: collector}
}

func (f *fixture) do(t *testing.T, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeList(t *testing.T, rec *httptest.ResponseRecorder) []endpoints.Definition {
	t.Helper()
	var resp listResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("body %q: %v", rec.Body.String(), err)
	}
	return resp.Endpoints
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) types.ErrorDetail {
	t.Helper()
	var resp types.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("body %q: %v", rec.Body.String(), err)
	}
	return resp.Error
}

func TestManagement_Lifecycle(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.upstream.SetResponse("/api", upstream.Response{Body: map[string]any{"ok": true}})
	f.upstream.SetResponse("/api/extra", upstream.Response{Body: map[string]any{"ok": true}})

	rec := f.do(t, http.MethodGet, ManagementPath, "")
	if rec.Code != http.StatusOK || len(decodeList(t, rec)) != 0 || !strings.Contains(rec.Body.String(), `"endpoints":[]`) {
		t.Fatalf("empty list = %d %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodPost, ManagementPath, `{"path":"/vendor","target":"`+f.upstream.URL()+`/api","headers":{"X-Key":"v"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create = %d %s", rec.Code, rec.Body.String())
	}
	created := decodeList(t, rec)
	if len(created) != 1 || created[0].ID == "" || created[0].Path != "/vendor" {
		t.Fatalf("created = %+v", created)
	}
	id := created[0].ID

	// Live immediately.
	if rec := f.do(t, http.MethodPost, "/vendor", `{"a":1}`); rec.Code != http.StatusOK {
		t.Fatalf("forward after create = %d %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, ManagementPath+"?endpoint_id="+id, "")
	if got := decodeList(t, rec); rec.Code != http.StatusOK || len(got) != 1 || got[0].ID != id {
		t.Fatalf("get = %d %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodPost, ManagementPath+"/"+id, `{"include_subpath":true}`)
	updated := decodeList(t, rec)
	if rec.Code != http.StatusOK || !updated[0].IncludeSubpath || updated[0].Headers["X-Key"] != "v" {
		t.Fatalf("partial update = %d %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(t, http.MethodGet, "/vendor/extra", ""); rec.Code != http.StatusOK {
		t.Fatalf("subpath route not installed: %s", rec.Body.String())
	}

	rec = f.do(t, http.MethodPut, ManagementPath+"/"+id, `{"path":"/vendor","target":"`+f.upstream.URL()+`/api"}`)
	replaced := decodeList(t, rec)
	if rec.Code != http.StatusOK || replaced[0].IncludeSubpath || replaced[0].Headers != nil || replaced[0].ID != id {
		t.Fatalf("replace = %d %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodDelete, ManagementPath+"?endpoint_id="+id, "")
	if got := decodeList(t, rec); rec.Code != http.StatusOK || got[0].ID != id {
		t.Fatalf("delete = %d %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(t, http.MethodPost, "/vendor", `{}`); rec.Code != http.StatusNotFound {
		t.Errorf("deleted route still served: %d", rec.Code)
	}
	if f.loader.Table().Len() != 0 {
		t.Errorf("table has %d routes after delete", f.loader.Table().Len())
	}
}

func TestManagement_Errors(t *testing.T) {
	static := []endpoints.Definition{{ID: "static-1", Path: "/static", Target: "https://static.example.com"}}
	f := newFixture(t, static, func(c *config.Config) { c.Passthrough.PremiumUser = false })

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
		wantParam  string
	}{
		{name: "unknown id", method: http.MethodGet, target: ManagementPath + "?endpoint_id=nope", wantStatus: 404, wantParam: "endpoint_id"},
		{name: "missing path", method: http.MethodPost, target: ManagementPath, body: `{"target":"https://x.example.com"}`, wantStatus: 400, wantParam: "path"},
		{name: "bad target", method: http.MethodPost, target: ManagementPath, body: `{"path":"/x","target":"ftp://x"}`, wantStatus: 400, wantParam: "target"},
		{name: "auth without licence", method: http.MethodPost, target: ManagementPath, body: `{"path":"/x","target":"https://x.example.com","auth":true}`, wantStatus: 400, wantParam: "auth"},
		{name: "half header pair", method: http.MethodPost, target: ManagementPath, body: `{"path":"/x","target":"https://x.example.com","headers":{"LANGFUSE_PUBLIC_KEY":"pk"}}`, wantStatus: 400, wantParam: "headers"},
		{name: "not an object", method: http.MethodPost, target: ManagementPath, body: `[1,2]`, wantStatus: 400, wantParam: "body"},
		{name: "duplicate static id", method: http.MethodPost, target: ManagementPath, body: `{"id":"static-1","path":"/y"}`, wantStatus: 400, wantParam: "endpoint_id"},
		{name: "update static", method: http.MethodPost, target: ManagementPath + "/static-1", body: `{"auth":false}`, wantStatus: 400, wantParam: "endpoint_id"},
		{name: "delete static", method: http.MethodDelete, target: ManagementPath + "?endpoint_id=static-1", wantStatus: 400, wantParam: "endpoint_id"},
		{name: "delete without id", method: http.MethodDelete, target: ManagementPath, wantStatus: 400, wantParam: "endpoint_id"},
		{name: "update unknown", method: http.MethodPost, target: ManagementPath + "/nope", body: `{"auth":false}`, wantStatus: 404, wantParam: "endpoint_id"},
		{name: "method not allowed", method: http.MethodPatch, target: ManagementPath, wantStatus: 405, wantParam: "method"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.target, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if got := decodeError(t, rec); got.Param != tt.wantParam {
				t.Errorf("param = %q, want %q (%s)", got.Param, tt.wantParam, got.Message)
			}
		})
	}

	// Static definitions are listed.
	rec := f.do(t, http.MethodGet, ManagementPath+"?endpoint_id=static-1", "")
	if rec.Code != http.StatusOK || decodeList(t, rec)[0].Path != "/static" {
		t.Errorf("static get = %d %s", rec.Code, rec.Body.String())
	}
}

func TestManagement_RequiresAPIKey(t *testing.T) {
	f := newFixture(t, nil, func(c *config.Config) {
		c.Security.Authentication.Enabled = true
		c.Security.Authentication.Keys = []config.APIKeyConfig{{Key: "sk-admin", UserID: "admin"}}
	})

	if rec := f.do(t, http.MethodGet, ManagementPath, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("without key = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, ManagementPath, "", "Authorization", "Bearer sk-admin"); rec.Code != http.StatusOK {
		t.Errorf("with key = %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_OpsEndpoints(t *testing.T) {
	f := newFixture(t, nil, nil)

	for _, path := range []string{"/health", "/ready", "/version"} {
		if rec := f.do(t, http.MethodGet, path, ""); rec.Code != http.StatusOK {
			t.Errorf("%s = %d", path, rec.Code)
		}
	}

	f.do(t, http.MethodPost, ManagementPath, `{"path":"/a","target":"https://a.example.com"}`)
	rec := f.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `test_gateway_route_reloads_total{result="success"} 1`) {
		t.Errorf("reload not counted:\n%s", rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/nowhere", "")
	if rec.Code != http.StatusNotFound || decodeError(t, rec).Type != types.ErrorTypeNotFound {
		t.Errorf("catch-all = %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("request id header missing")
	}
}

func TestServe_GracefulShutdown(t *testing.T) {
	cfg := config.Default()
	cfg.Proxy.ShutdownTimeout = time.Second
	engine := passthrough.NewEngine(cfg.Passthrough, passthrough.WithLogger(slog.New(slog.DiscardHandler)))
	loader := passthrough.NewLoader(engine, nil, router.NewTable(), nil)
	srv := New(cfg, loader, WithChecker(health.New(time.Second)), WithLogger(slog.New(slog.DiscardHandler)))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server never answered: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
