package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"fcfilter/internal/domain"
	"fcfilter/internal/infra/config"
	"fcfilter/internal/usecase/filter"
)

const maxBodyBytes = 16 << 20

// InletFilter is the filter stage served by the gateway.
type InletFilter interface {
	Inlet(ctx context.Context, body *domain.ChatBody, user map[string]any) (*domain.ChatBody, filter.Outcome)
}

// HandlerDeps holds dependencies for the HTTP handlers.
type HandlerDeps struct {
	Pipeline config.PipelineConfig
	Valves   config.Valves
	Filter   InletFilter
	Logger   *slog.Logger
}

// PipelineInfo is one entry of the pipelines listing.
type PipelineInfo struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Pipelines []string `json:"pipelines"`
	Priority  int      `json:"priority"`
	Valves    bool     `json:"valves"`
}

type filterForm struct {
	Body *domain.ChatBody `json:"body"`
	User map[string]any   `json:"user"`
}

func registerRoutes(mux *http.ServeMux, deps HandlerDeps) {
	mux.HandleFunc("GET /health", healthHandler(deps))
	mux.HandleFunc("GET /v1/pipelines", pipelinesHandler(deps))
	mux.HandleFunc("GET /pipelines", pipelinesHandler(deps))
	mux.HandleFunc("POST /{id}/filter/inlet", inletHandler(deps))
	mux.HandleFunc("POST /{id}/filter/outlet", outletHandler(deps))
	mux.HandleFunc("GET /{id}/valves", valvesHandler(deps))
	mux.HandleFunc("GET /{id}/valves/spec", valvesSpecHandler(deps))
}

func healthHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(deps.Logger, w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func pipelinesHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(deps.Logger, w, http.StatusOK, map[string][]PipelineInfo{
			"data": {{
				ID:        deps.Pipeline.ID,
				Name:      deps.Pipeline.Name,
				Type:      "filter",
				Pipelines: deps.Valves.Pipelines,
				Priority:  deps.Valves.Priority,
				Valves:    true,
			}},
		})
	}
}

// knownPipeline writes a 404 and returns false when the path id is not ours.
func knownPipeline(w http.ResponseWriter, r *http.Request, deps HandlerDeps) bool {
	if r.PathValue("id") != deps.Pipeline.ID {
		writeError(deps.Logger, w, http.StatusNotFound, domain.ErrPipelineUnknown.Error())
		return false
	}
	return true
}

func decodeForm(log *slog.Logger, w http.ResponseWriter, r *http.Request) (*filterForm, bool) {
	var form filterForm
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&form); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(log, w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		writeError(log, w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return nil, false
	}
	if form.Body == nil {
		writeError(log, w, http.StatusBadRequest, "body is required")
		return nil, false
	}
	return &form, true
}

func inletHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !knownPipeline(w, r, deps) {
			return
		}
		form, ok := decodeForm(deps.Logger, w, r)
		if !ok {
			return
		}
		out, outcome := deps.Filter.Inlet(r.Context(), form.Body, form.User)
		w.Header().Set("X-Filter-Outcome", string(outcome))
		writeJSON(deps.Logger, w, http.StatusOK, out)
	}
}

func outletHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !knownPipeline(w, r, deps) {
			return
		}
		form, ok := decodeForm(deps.Logger, w, r)
		if !ok {
			return
		}
		writeJSON(deps.Logger, w, http.StatusOK, form.Body)
	}
}

func valvesHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !knownPipeline(w, r, deps) {
			return
		}
		writeJSON(deps.Logger, w, http.StatusOK, deps.Valves.Redacted())
	}
}

// valvesSpecHandler describes the valve fields as a JSON schema object.
func valvesSpecHandler(deps HandlerDeps) http.HandlerFunc {
	spec := valvesSchema()
	return func(w http.ResponseWriter, r *http.Request) {
		if !knownPipeline(w, r, deps) {
			return
		}
		writeJSON(deps.Logger, w, http.StatusOK, spec)
	}
}

func valvesSchema() map[string]any {
	props := map[string]any{}
	var order []string
	t := reflect.TypeOf(config.Valves{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		props[name] = map[string]any{"title": name, "type": jsonType(f.Type.Kind())}
		order = append(order, name)
	}
	return map[string]any{
		"title":      "Valves",
		"type":       "object",
		"properties": props,
		"order":      order,
	}
}

func jsonType(k reflect.Kind) string {
	switch k {
	case reflect.String:
		return "string"
	case reflect.Int, reflect.Int32, reflect.Int64:
		return "integer"
	case reflect.Bool:
		return "boolean"
	case reflect.Slice:
		return "array"
	default:
		return "object"
	}
}

// writeJSON encodes v before writing the header; a value that cannot be
// encoded yields a 500.
func writeJSON(log *slog.Logger, w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error("encode response", "error", err)
		http.Error(w, `{"detail":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		log.Warn("write response", "error", err)
	}
}

func writeError(log *slog.Logger, w http.ResponseWriter, status int, detail string) {
	writeJSON(log, w, status, map[string]string{"detail": detail})
}
