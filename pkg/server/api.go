package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/NERVsystems/overpassqb/pkg/core"
	"github.com/NERVsystems/overpassqb/pkg/osm/queries"
	"github.com/NERVsystems/overpassqb/pkg/tools"
)

// APIPrefix is the path prefix of the REST API.
const APIPrefix = "/api/v1"

// API exposes the registry operations as JSON over HTTP.
type API struct {
	registry *tools.Registry
	logger   *slog.Logger
}

// NewAPI creates the REST handlers for registry.
func NewAPI(registry *tools.Registry, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{registry: registry, logger: logger}
}

// Routes mounts the API endpoints on r, which is expected to be the
// APIPrefix subrouter.
func (a *API) Routes(r *mux.Router) {
	r.HandleFunc("/query", a.handleBuildQuery).Methods(http.MethodPost)
	r.HandleFunc("/query/id", a.handleBuildIDQuery).Methods(http.MethodPost)
	r.HandleFunc("/area", a.handleResolveArea).Methods(http.MethodPost)
	r.HandleFunc("/execute", a.handleExecute).Methods(http.MethodPost)
	r.HandleFunc("/export", a.handleExport).Methods(http.MethodPost)
	r.HandleFunc("/places", a.handlePlaces).Methods(http.MethodGet)
	r.HandleFunc("/tags/keys", a.handleTagKeys).Methods(http.MethodGet)
	r.HandleFunc("/tags/values", a.handleTagValues).Methods(http.MethodGet)
	r.HandleFunc("/bbox/area", a.handleBBoxArea).Methods(http.MethodGet)
	r.HandleFunc("/presets", a.handleListPresets).Methods(http.MethodGet)
	r.HandleFunc("/presets/{name}", a.handleBuildPreset).Methods(http.MethodGet)
	r.HandleFunc("/version", a.handleVersion).Methods(http.MethodGet)
}

// HTTPStatus maps an error code to the HTTP status the API answers with.
func HTTPStatus(code core.ErrorCode) int {
	switch code {
	case core.ErrInvalidInput, core.ErrEmptyParameter, core.ErrMissingParameter,
		core.ErrInvalidParameter, core.ErrNoValidConditions, core.ErrInvalidBBox,
		core.ErrInvalidRelationID, core.ErrUnsupportedExportFormat:
		return http.StatusBadRequest
	case core.ErrEmptyResultSet, core.ErrNoResults:
		return http.StatusNotFound
	case core.ErrRateLimit:
		return http.StatusTooManyRequests
	case core.ErrServiceTimeout:
		return http.StatusGatewayTimeout
	case core.ErrServiceUnavailable:
		return http.StatusServiceUnavailable
	case core.ErrNetworkError, core.ErrParseError:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("failed to encode response", "error", err)
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	mcpErr := tools.AsMCPError(err)
	status := HTTPStatus(core.ErrorCode(mcpErr.Code))
	if status >= http.StatusInternalServerError {
		a.logger.Error("api request failed", "path", r.URL.Path, "code", mcpErr.Code, "error", err)
	} else {
		a.logger.Debug("api request rejected", "path", r.URL.Path, "code", mcpErr.Code, "error", mcpErr.Message)
	}
	a.writeJSON(w, status, mcpErr)
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return core.NewValidationError(core.ErrInvalidInput, "request body too large")
		}
		return core.NewValidationError(core.ErrInvalidInput, "invalid JSON body: "+err.Error())
	}
	return nil
}

func (a *API) handleBuildQuery(w http.ResponseWriter, r *http.Request) {
	var req queries.Request
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	out, err := a.registry.BuildQuery(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, out)
}

func (a *API) handleBuildIDQuery(w http.ResponseWriter, r *http.Request) {
	var in tools.IDQueryInput
	if err := decode(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	out, err := a.registry.BuildIDQuery(in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, out)
}

func (a *API) handleResolveArea(w http.ResponseWriter, r *http.Request) {
	var in tools.AreaInput
	if err := decode(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	out, err := a.registry.ResolveArea(in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, out)
}

func (a *API) handleExecute(w http.ResponseWriter, r *http.Request) {
	var in tools.RunInput
	if err := decode(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	out, err := a.registry.Run(r.Context(), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, out)
}

// handleExport answers with the encoded file as a download, or with the
// storage location when the request asks for an upload.
func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	var in tools.ExportInput
	if err := decode(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	if format := r.URL.Query().Get("format"); format != "" {
		in.Format = format
	}
	if upload := r.URL.Query().Get("upload"); upload != "" {
		in.Upload, _ = strconv.ParseBool(upload)
	}

	out, err := a.registry.Export(r.Context(), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	if in.Upload {
		a.writeJSON(w, http.StatusCreated, map[string]interface{}{
			"name":      out.File.Name,
			"mime_type": out.File.MIMEType,
			"count":     out.Count,
			"size":      len(out.File.Content),
			"location":  out.Location,
		})
		return
	}

	w.Header().Set("Content-Type", out.File.MIMEType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", out.File.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(out.File.Content)))
	w.Header().Set("X-Element-Count", strconv.Itoa(out.Count))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out.File.Content); err != nil {
		a.logger.Error("failed to write export", "name", out.File.Name, "error", err)
	}
}

func (a *API) handlePlaces(w http.ResponseWriter, r *http.Request) {
	places, err := a.registry.SearchPlaces(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]interface{}{"places": places})
}

func (a *API) handleTagKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := a.registry.SuggestKeys(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]interface{}{"keys": keys})
}

func (a *API) handleTagValues(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := q.Get("key")
	values, err := a.registry.SuggestValues(r.Context(), key, q.Get("q"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]interface{}{"key": strings.TrimSpace(key), "values": values})
}

func (a *API) handleBBoxArea(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := a.registry.BBoxArea(queries.BBoxFields{
		South: q.Get("s"),
		West:  q.Get("w"),
		North: q.Get("n"),
		East:  q.Get("e"),
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, out)
}

func (a *API) handleListPresets(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]interface{}{"presets": a.registry.ListPresets()})
}

func (a *API) handleBuildPreset(w http.ResponseWriter, r *http.Request) {
	out, err := a.registry.BuildPreset(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, out)
}

func (a *API) handleVersion(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.registry.Version())
}
