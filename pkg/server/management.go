package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"mercator-hq/passthrough/pkg/endpoints"
	"mercator-hq/passthrough/pkg/passthrough"
	"mercator-hq/passthrough/pkg/proxy/types"
	"mercator-hq/passthrough/pkg/telemetry/metrics"
)

// ManagementPath is the base path of the endpoint management API.
const ManagementPath = "/config/pass_through_endpoint"

// maxManagementBody bounds management request bodies.
const maxManagementBody = 1 << 20

type listResponse struct {
	Endpoints []endpoints.Definition `json:"endpoints"`
}

// managementAPI serves CRUD over stored pass-through endpoints. Every
// successful mutation reloads the route table.
type managementAPI struct {
	loader    *passthrough.Loader
	collector *metrics.Collector
	logger    *slog.Logger
}

func (m *managementAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, hasID := strings.CutPrefix(r.URL.Path, ManagementPath+"/")
	if !hasID && r.URL.Path != ManagementPath {
		passthrough.WriteError(w, &passthrough.ProxyError{
			Message: fmt.Sprintf("no route for %s", r.URL.Path),
			Type:    types.ErrorTypeNotFound,
			Param:   "path",
			Code:    http.StatusNotFound,
		})
		return
	}

	switch {
	case !hasID && r.Method == http.MethodGet:
		m.list(w, r)
	case !hasID && r.Method == http.MethodPost:
		m.create(w, r)
	case !hasID && r.Method == http.MethodDelete:
		m.delete(w, r)
	case hasID && id != "" && r.Method == http.MethodGet:
		m.get(w, r, id)
	case hasID && id != "" && r.Method == http.MethodPost:
		m.update(w, r, id)
	case hasID && id != "" && r.Method == http.MethodPut:
		m.replace(w, r, id)
	default:
		allow := "GET, POST, DELETE"
		if hasID {
			allow = "GET, POST, PUT"
		}
		w.Header().Set("Allow", allow)
		passthrough.WriteError(w, &passthrough.ProxyError{
			Message: fmt.Sprintf("method %s not allowed on %s", r.Method, r.URL.Path),
			Type:    types.ErrorTypeMethodNotAllowed,
			Param:   "method",
			Code:    http.StatusMethodNotAllowed,
		})
	}
}

func (m *managementAPI) list(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("endpoint_id"); id != "" {
		m.get(w, r, id)
		return
	}
	defs, err := m.loader.Definitions(r.Context())
	if err != nil {
		m.fail(w, r, "list", err)
		return
	}
	writeList(w, defs...)
}

func (m *managementAPI) get(w http.ResponseWriter, r *http.Request, id string) {
	defs, err := m.loader.Definitions(r.Context())
	if err != nil {
		m.fail(w, r, "get", err)
		return
	}
	for _, d := range defs {
		if d.ID == id {
			writeList(w, d)
			return
		}
	}
	m.fail(w, r, "get", fmt.Errorf("endpoint %q: %w", id, endpoints.ErrNotFound))
}

func (m *managementAPI) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	record, err := decodeRecord(w, r)
	if err != nil {
		m.fail(w, r, "create", err)
		return
	}
	def, err := endpoints.Normalize(record)
	if err != nil {
		m.fail(w, r, "create", err)
		return
	}
	if def.ID != "" {
		if err := m.ensureUnused(ctx, def.ID); err != nil {
			m.fail(w, r, "create", err)
			return
		}
	}
	if err := m.loader.Validate(ctx, def); err != nil {
		m.fail(w, r, "create", err)
		return
	}

	created, err := m.loader.Registry().Create(ctx, def)
	if err != nil {
		m.fail(w, r, "create", err)
		return
	}
	m.reload(ctx)
	writeList(w, created)
}

func (m *managementAPI) update(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()
	if err := m.ensureMutable(id); err != nil {
		m.fail(w, r, "update", err)
		return
	}
	record, err := decodeRecord(w, r)
	if err != nil {
		m.fail(w, r, "update", err)
		return
	}
	patch, err := endpoints.PatchFromMap(record)
	if err != nil {
		m.fail(w, r, "update", err)
		return
	}
	existing, err := m.loader.Registry().Get(ctx, id)
	if err != nil {
		m.fail(w, r, "update", err)
		return
	}
	if err := m.loader.Validate(ctx, patch.Apply(existing)); err != nil {
		m.fail(w, r, "update", err)
		return
	}

	updated, err := m.loader.Registry().Update(ctx, id, patch)
	if err != nil {
		m.fail(w, r, "update", err)
		return
	}
	m.reload(ctx)
	writeList(w, updated)
}

func (m *managementAPI) replace(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()
	if err := m.ensureMutable(id); err != nil {
		m.fail(w, r, "replace", err)
		return
	}
	record, err := decodeRecord(w, r)
	if err != nil {
		m.fail(w, r, "replace", err)
		return
	}
	def, err := endpoints.Normalize(record)
	if err != nil {
		m.fail(w, r, "replace", err)
		return
	}
	def.ID = id
	if err := m.loader.Validate(ctx, def); err != nil {
		m.fail(w, r, "replace", err)
		return
	}

	replaced, err := m.loader.Registry().Replace(ctx, id, def)
	if err != nil {
		m.fail(w, r, "replace", err)
		return
	}
	m.reload(ctx)
	writeList(w, replaced)
}

func (m *managementAPI) delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.URL.Query().Get("endpoint_id")
	if id == "" {
		m.fail(w, r, "delete", &endpoints.ValidationError{Field: "endpoint_id", Message: "endpoint_id query parameter is required"})
		return
	}
	if err := m.ensureMutable(id); err != nil {
		m.fail(w, r, "delete", err)
		return
	}

	removed, err := m.loader.Registry().Delete(ctx, id)
	if err != nil {
		m.fail(w, r, "delete", err)
		return
	}
	m.reload(ctx)
	writeList(w, removed)
}

func (m *managementAPI) ensureMutable(id string) error {
	if m.loader.IsStatic(id) {
		return &endpoints.ValidationError{Field: "endpoint_id",
			Message: fmt.Sprintf("endpoint %q is defined in the configuration file and is read-only", id)}
	}
	return nil
}

func (m *managementAPI) ensureUnused(ctx context.Context, id string) error {
	if err := m.ensureMutable(id); err != nil {
		return err
	}
	_, err := m.loader.Registry().Get(ctx, id)
	switch {
	case err == nil:
		return &endpoints.ValidationError{Field: "id", Message: fmt.Sprintf("endpoint %q already exists", id)}
	case errors.Is(err, endpoints.ErrNotFound):
		return nil
	default:
		return err
	}
}

// reload installs the new route table. The mutation is already persisted,
// so a failing definition elsewhere in the list is logged, not returned.
func (m *managementAPI) reload(ctx context.Context) {
	err := m.loader.Reload(ctx)
	if m.collector != nil {
		m.collector.RecordReload(err)
		table := m.loader.Table()
		m.collector.SetRoutes(table.Len(), len(table.AuthenticatedRoutes()))
	}
	if err != nil {
		m.logger.WarnContext(ctx, "route reload after mutation reported errors", "error", err)
	}
}

func (m *managementAPI) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	pe := passthrough.ToProxyError(err)
	if pe.StatusCode() >= http.StatusInternalServerError {
		m.logger.ErrorContext(r.Context(), "management request failed", "operation", op, "error", err)
	} else {
		m.logger.DebugContext(r.Context(), "management request rejected", "operation", op, "error", err)
	}
	passthrough.WriteError(w, pe)
}

func decodeRecord(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxManagementBody))
	if err != nil {
		return nil, err
	}
	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil || record == nil {
		return nil, &endpoints.ValidationError{Field: "body", Message: "request body must be a JSON object"}
	}
	return record, nil
}

func writeList(w http.ResponseWriter, defs ...endpoints.Definition) {
	if defs == nil {
		defs = []endpoints.Definition{}
	}
	types.WriteJSON(w, http.StatusOK, listResponse{Endpoints: defs})
}
