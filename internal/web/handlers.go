package web

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/credstore/internal/codec"
	"github.com/JonMunkholm/credstore/internal/core"
	"github.com/JonMunkholm/credstore/internal/importer"
	"github.com/JonMunkholm/credstore/internal/logging"
	"github.com/JonMunkholm/credstore/internal/schema"
)

// FieldInfo describes one column of an entity.
type FieldInfo struct {
	ID     string `json:"id"`
	Column string `json:"column"`
	JSON   bool   `json:"json,omitempty"`
}

// SchemaInfo describes a registered entity for API clients.
type SchemaInfo struct {
	Name       string                 `json:"name"`
	Table      string                 `json:"table"`
	PrimaryKey string                 `json:"primaryKey"`
	Fields     []FieldInfo            `json:"fields"`
	Children   []schema.ChildRelation `json:"children,omitempty"`
}

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status string                   `json:"status"`
	Writes *core.WriteLimiterStatus `json:"writes,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if l := s.ops.Service().Limiter(); l != nil {
		status := l.Status()
		resp.Writes = &status
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	entities := s.ops.Service().Registry().All()

	infos := make([]SchemaInfo, 0, len(entities))
	for _, e := range entities {
		fields := make([]FieldInfo, len(e.Columns))
		for i, col := range e.Columns {
			fields[i] = FieldInfo{ID: codec.ColumnToField(col), Column: col, JSON: codec.IsJSONColumn(col)}
		}
		infos = append(infos, SchemaInfo{
			Name:       e.Name,
			Table:      e.Table,
			PrimaryKey: codec.ColumnToField(e.PrimaryKey),
			Fields:     fields,
			Children:   e.Children,
		})
	}

	writeJSON(w, http.StatusOK, core.Result{Success: true, Data: infos})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOptions(r)
	if err != nil {
		s.respondError(w, r, "list", err)
		return
	}
	respondResult(w, r, s.ops.ListEntities(r.Context(), entityParam(r), opts), http.StatusOK)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	res := s.ops.GetEntityDetails(r.Context(), entityParam(r), idParam(r))
	respondResult(w, r, res, http.StatusOK)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	data, err := decodeRecord(w, r, s.cfg.Server.MaxBodyBytes)
	if err != nil {
		s.respondError(w, r, "create", err)
		return
	}
	respondResult(w, r, s.ops.CreateEntity(r.Context(), entityParam(r), data), http.StatusCreated)
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	partial, err := decodeRecord(w, r, s.cfg.Server.MaxBodyBytes)
	if err != nil {
		s.respondError(w, r, "patch", err)
		return
	}
	res := s.ops.PatchEntity(r.Context(), entityParam(r), idParam(r), partial)
	respondResult(w, r, res, http.StatusOK)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	res := s.ops.DeleteEntityCascade(r.Context(), entityParam(r), idParam(r))
	respondResult(w, r, res, http.StatusOK)
}

// handleImport creates one record per row of a CSV request body.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	e, err := s.ops.Service().Registry().Resolve(entityParam(r))
	if err != nil {
		s.respondError(w, r, "import", err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)
	res, err := importer.Import(r.Context(), s.ops, e, r.Body)
	if err != nil {
		if res != nil {
			logging.FromContext(r.Context()).Warn("import stopped early",
				"entity", e.Name,
				"imported", res.Imported,
				"error", err,
			)
		}
		s.respondError(w, r, "import", err)
		return
	}

	msg := fmt.Sprintf("Imported %d records", res.Imported)
	if n := len(res.Failed); n > 1 {
		msg = fmt.Sprintf("Imported %d records, %d rows failed", res.Imported, n-1)
	}
	writeJSON(w, http.StatusOK, core.Result{Success: true, Data: res, Message: msg})
}

// entityParam returns the {entity} path segment, unescaped so table names
// with spaces resolve.
func entityParam(r *http.Request) string {
	return unescape(chi.URLParam(r, "entity"))
}

func idParam(r *http.Request) string {
	return unescape(chi.URLParam(r, "id"))
}

func unescape(s string) string {
	if u, err := url.PathUnescape(s); err == nil {
		return u
	}
	return s
}
