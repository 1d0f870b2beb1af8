package flightmap

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"html/template"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flightmap/tracker/history"
	"github.com/flightmap/tracker/httpx"
	"github.com/flightmap/tracker/internal/logging"
	"github.com/flightmap/tracker/internal/timeutil"
	"github.com/flightmap/tracker/pipeline"
	"github.com/flightmap/tracker/rbac"
	"github.com/flightmap/tracker/states"
	"github.com/flightmap/tracker/trajectory"
)

//go:embed index.html.tmpl
var indexSource string

var indexTemplate = template.Must(template.New("index").Parse(indexSource))

// Pipeline is the orchestrator surface the HTTP layer drives.
type Pipeline interface {
	Ingest(ctx context.Context) (pipeline.IngestReport, error)
	Refresh(ctx context.Context) (pipeline.RefreshReport, error)
	Status() pipeline.Status
	OutputPath() string
}

// History is the read side of the sample store.
type History interface {
	QueryWindow(ctx context.Context, start, end time.Time) ([]history.Record, error)
	QueryAircraft(ctx context.Context, aircraftID string, start, end time.Time) ([]history.Record, error)
}

// Handler exposes the map, the refresh trigger and read-only history.
type Handler struct {
	pipeline Pipeline
	history  History
	log      logging.Logger
	window   time.Duration
	now      func() time.Time
}

// NewHandler creates a flight map handler. window is the default lookback
// for history queries.
func NewHandler(p Pipeline, h History, log logging.Logger, window time.Duration) *Handler {
	if log == nil {
		log = logging.Noop()
	}
	return &Handler{pipeline: p, history: h, log: log, window: window, now: time.Now}
}

// Routes registers the flight map routes.
func (h *Handler) Routes(enforcer *rbac.Enforcer) chi.Router {
	r := chi.NewRouter()
	r.With(enforcer.Authorize(rbac.PermissionViewMap)).Get("/", h.index(enforcer))
	r.With(enforcer.Authorize(rbac.PermissionViewMap)).Get("/map", h.serveMap)
	r.With(enforcer.Authorize(rbac.PermissionTriggerRefresh)).Post("/api/refresh", h.refresh)
	r.With(enforcer.Authorize(rbac.PermissionViewHistory)).Get("/api/samples", h.listSamples)
	r.With(enforcer.Authorize(rbac.PermissionViewHistory)).Get("/api/trajectories", h.listTrajectories)
	r.With(enforcer.Authorize(rbac.PermissionViewStatus)).Get("/api/status", h.status)
	return r
}

func (h *Handler) index(enforcer *rbac.Enforcer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := h.pipeline.Status()
		data := struct {
			State      string
			LastRender string
			HasMap     bool
			CanRefresh bool
		}{
			State:      st.State,
			HasMap:     h.artifactExists(),
			CanRefresh: enforcer.Allowed(r, rbac.PermissionTriggerRefresh),
		}
		if st.LastRender != nil {
			data.LastRender = st.LastRender.StartedAt.UTC().Format(time.RFC3339)
		}

		var buf bytes.Buffer
		if err := indexTemplate.Execute(&buf, data); err != nil {
			h.log.Error(r.Context(), "render index", logging.Err(err))
			httpx.Error(w, http.StatusInternalServerError, "failed to render index")
			return
		}
		httpx.WriteHTML(w, http.StatusOK, buf.Bytes())
	}
}

func (h *Handler) artifactExists() bool {
	info, err := os.Stat(h.pipeline.OutputPath())
	return err == nil && !info.IsDir()
}

func (h *Handler) serveMap(w http.ResponseWriter, r *http.Request) {
	f, err := os.Open(h.pipeline.OutputPath())
	if errors.Is(err, os.ErrNotExist) {
		httpx.Error(w, http.StatusNotFound, "map not rendered yet")
		return
	}
	if err != nil {
		h.log.Error(r.Context(), "open artifact", logging.Err(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to open map")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "failed to open map")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		IngestOnly bool `json:"ingest_only"`
	}
	if err := httpx.DecodeOptionalJSON(r, &payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	var (
		report pipeline.RefreshReport
		err    error
	)
	if payload.IngestOnly {
		var ing pipeline.IngestReport
		ing, err = h.pipeline.Ingest(r.Context())
		report.Ingest = &ing
	} else {
		report, err = h.pipeline.Refresh(r.Context())
	}
	if err != nil {
		status, message := refreshFailure(err)
		httpx.Error(w, status, message)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, report)
}

func refreshFailure(err error) (int, string) {
	switch pipeline.Classify(err) {
	case pipeline.OutcomeNetwork:
		return http.StatusBadGateway, "telemetry feed unavailable"
	case pipeline.OutcomeStorage:
		return http.StatusServiceUnavailable, "history store unavailable"
	case pipeline.OutcomeEmpty:
		return http.StatusUnprocessableEntity, "no samples in the render window"
	case pipeline.OutcomeCanceled:
		return http.StatusServiceUnavailable, "refresh canceled"
	default:
		return http.StatusInternalServerError, "refresh failed"
	}
}

type samplesResponse struct {
	Start   time.Time        `json:"start"`
	End     time.Time        `json:"end"`
	Count   int              `json:"count"`
	Samples []history.Record `json:"samples"`
}

func (h *Handler) listSamples(w http.ResponseWriter, r *http.Request) {
	start, end, ok := h.parseRange(w, r)
	if !ok {
		return
	}
	records, ok := h.query(w, r, start, end)
	if !ok {
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	httpx.WriteJSON(w, http.StatusOK, samplesResponse{Start: start, End: end, Count: len(records), Samples: records})
}

type trajectoryView struct {
	AircraftID string          `json:"aircraft_id"`
	Color      string          `json:"color"`
	Latest     states.Sample   `json:"latest"`
	Path       trajectory.Path `json:"path"`
}

func (h *Handler) listTrajectories(w http.ResponseWriter, r *http.Request) {
	start, end, ok := h.parseRange(w, r)
	if !ok {
		return
	}
	records, ok := h.query(w, r, start, end)
	if !ok {
		return
	}

	res := trajectory.Build(history.Samples(records))
	out := make([]trajectoryView, 0, len(res.Order))
	for _, id := range res.Order {
		path := res.Paths[id]
		if path == nil {
			path = trajectory.Path{}
		}
		out = append(out, trajectoryView{
			AircraftID: id,
			Color:      trajectory.Color(id),
			Latest:     res.Latest[id],
			Path:       path,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// parseRange reads window or since/until. since wins when both are given.
func (h *Handler) parseRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	q := r.URL.Query()
	end := h.now().UTC()

	until, err := timeutil.ParseOptionalTimestamp(q.Get("until"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid until timestamp")
		return time.Time{}, time.Time{}, false
	}
	if until != nil {
		end = *until
	}

	since, err := timeutil.ParseOptionalTimestamp(q.Get("since"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid since timestamp")
		return time.Time{}, time.Time{}, false
	}
	if since != nil {
		if since.After(end) {
			httpx.Error(w, http.StatusBadRequest, "since must not be after until")
			return time.Time{}, time.Time{}, false
		}
		return *since, end, true
	}

	window := h.window
	if raw := q.Get("window"); raw != "" {
		window, err = timeutil.ParseWindow(raw)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, "invalid window")
			return time.Time{}, time.Time{}, false
		}
	}
	return end.Add(-window), end, true
}

func (h *Handler) query(w http.ResponseWriter, r *http.Request, start, end time.Time) ([]history.Record, bool) {
	var (
		records []history.Record
		err     error
	)
	if aircraft := strings.TrimSpace(r.URL.Query().Get("aircraft")); aircraft != "" {
		records, err = h.history.QueryAircraft(r.Context(), aircraft, start, end)
	} else {
		records, err = h.history.QueryWindow(r.Context(), start, end)
	}
	if err != nil {
		h.log.Error(r.Context(), "query history", logging.Err(err))
		httpx.Error(w, http.StatusServiceUnavailable, "failed to query history")
		return nil, false
	}
	return records, true
}

func (h *Handler) status(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.pipeline.Status())
}
