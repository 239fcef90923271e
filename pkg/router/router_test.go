package router

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func named(name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, name+"|"+Subpath(r.Context()))
	})
}

func TestTable_Match(t *testing.T) {
	table := NewTable()
	err := table.Install([]Route{
		{Kind: KindExact, Path: "/v1/rerank", Handler: named("rerank")},
		{Kind: KindSubpath, Path: "/vertex", Handler: named("vertex")},
		{Kind: KindSubpath, Path: "/vertex/v1/", Handler: named("vertex-v1")},
		{Kind: KindExact, Path: "/vertex", Handler: named("vertex-exact")},
	})
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	tests := []struct {
		path        string
		wantMatch   bool
		wantHandler string
		wantSubpath string
	}{
		{"/v1/rerank", true, "rerank", ""},
		{"/v1/rerank/extra", false, "", ""},
		{"/vertex", true, "vertex-exact", ""},
		{"/vertex/", false, "", ""},
		{"/vertex/models", true, "vertex", "models"},
		{"/vertex/v1/models/gemini:generateContent", true, "vertex-v1", "models/gemini:generateContent"},
		{"/vertexai/models", false, "", ""},
		{"/unknown", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			route, subpath, ok := table.Match(tt.path)
			if ok != tt.wantMatch {
				t.Fatalf("Match(%q) ok = %v, want %v", tt.path, ok, tt.wantMatch)
			}
			if !ok {
				return
			}
			if subpath != tt.wantSubpath {
				t.Errorf("subpath = %q, want %q", subpath, tt.wantSubpath)
			}

			rec := httptest.NewRecorder()
			route.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if got, _, _ := strings.Cut(rec.Body.String(), "|"); got != tt.wantHandler {
				t.Errorf("handler = %q, want %q", got, tt.wantHandler)
			}
		})
	}
}

func TestTable_ServeHTTP(t *testing.T) {
	table := NewTable()
	if err := table.Install([]Route{
		{Kind: KindSubpath, Path: "/anthropic", Handler: named("anthropic")},
		{Kind: KindExact, Path: "/only-post", Methods: []string{http.MethodPost}, Handler: named("post")},
	}); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	t.Run("subpath stored in context", func(t *testing.T) {
		rec := httptest.NewRecorder()
		table.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/anthropic/v1/messages", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if rec.Body.String() != "anthropic|v1/messages" {
			t.Errorf("body = %q", rec.Body.String())
		}
	})

	t.Run("not found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		table.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
		var body struct {
			Error struct {
				Type string `json:"type"`
				Code string `json:"code"`
			} `json:"error"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Error.Type != "not_found" || body.Error.Code != "404" {
			t.Errorf("error = %+v", body.Error)
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		table.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/only-post", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("status = %d, want 405", rec.Code)
		}
		if got := rec.Header().Get("Allow"); got != "POST" {
			t.Errorf("Allow = %q, want POST", got)
		}
	})

	t.Run("default methods", func(t *testing.T) {
		for _, m := range DefaultMethods {
			rec := httptest.NewRecorder()
			table.ServeHTTP(rec, httptest.NewRequest(m, "/anthropic/x", nil))
			if rec.Code != http.StatusOK {
				t.Errorf("%s status = %d, want 200", m, rec.Code)
			}
		}
		rec := httptest.NewRecorder()
		table.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/anthropic/x", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("HEAD status = %d, want 405", rec.Code)
		}
	})
}

func TestTable_InstallInvalidRoutes(t *testing.T) {
	table := NewTable()
	err := table.Install([]Route{
		{Kind: KindExact, Path: "no-slash", Handler: named("a")},
		{Kind: KindExact, Path: "/nil-handler"},
		{Kind: KindExact, Path: "/ok", Handler: named("ok")},
	})
	if err == nil {
		t.Fatal("Install() error = nil, want joined errors")
	}
	if !strings.Contains(err.Error(), "no-slash") || !strings.Contains(err.Error(), "/nil-handler") {
		t.Errorf("error = %v, want both invalid routes named", err)
	}
	if table.Len() != 1 {
		t.Errorf("Len() = %d, want 1", table.Len())
	}
	if _, _, ok := table.Match("/ok"); !ok {
		t.Error("valid route was not installed")
	}
}

func TestTable_FirstWinsAndReplace(t *testing.T) {
	table := NewTable()
	if err := table.Install([]Route{
		{Kind: KindExact, Path: "/dup", Handler: named("first"), EndpointID: "1"},
		{Kind: KindExact, Path: "/dup", Handler: named("second"), EndpointID: "2"},
	}); err != nil {
		t.Fatal(err)
	}
	route, _, _ := table.Match("/dup")
	if route.EndpointID != "1" {
		t.Errorf("EndpointID = %q, want 1", route.EndpointID)
	}

	if err := table.Install(nil); err != nil {
		t.Fatal(err)
	}
	if _, _, ok := table.Match("/dup"); ok {
		t.Error("route survived an empty Install")
	}
}

func TestTable_AuthenticatedRoutes(t *testing.T) {
	table := NewTable()
	if err := table.Install([]Route{
		{Kind: KindExact, Path: "/a", Handler: named("a"), Auth: true},
		{Kind: KindSubpath, Path: "/a", Handler: named("a"), Auth: true},
		{Kind: KindExact, Path: "/b", Handler: named("b")},
	}); err != nil {
		t.Fatal(err)
	}
	got := table.AuthenticatedRoutes()
	if len(got) != 1 || got[0] != "/a" {
		t.Errorf("AuthenticatedRoutes() = %v, want [/a]", got)
	}
}

func TestRoute_Pattern(t *testing.T) {
	if got := (&Route{Kind: KindSubpath, Path: "/x/"}).Pattern(); got != "/x/*" {
		t.Errorf("Pattern() = %q", got)
	}
	if got := (&Route{Kind: KindExact, Path: "/x"}).Pattern(); got != "/x" {
		t.Errorf("Pattern() = %q", got)
	}
}
