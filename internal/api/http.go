package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/atiastack/atia-dashboard/internal/services"
	"github.com/atiastack/atia-dashboard/internal/settings"
	"github.com/atiastack/atia-dashboard/internal/synchronizer"
	"github.com/atiastack/atia-dashboard/internal/utils"
	"github.com/atiastack/atia-dashboard/internal/views"
)

const maxRequestBytes = 1 << 20

// Deps are the controllers the view API drives.
type Deps struct {
	Sync        *synchronizer.Synchronizer
	Submissions *services.SubmissionController
	Views       *views.Controller
	Settings    *settings.Store
}

// ViewServer exposes rendered pages and UI actions over HTTP.
type ViewServer struct {
	deps   Deps
	logger *slog.Logger
	router *mux.Router
	now    func() time.Time

	mu       sync.Mutex
	settings *settings.Settings
	sub      *synchronizer.Subscription
	srv      *http.Server
}

// NewViewServer wires routes over deps.
func NewViewServer(deps Deps, logger *slog.Logger) *ViewServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ViewServer{deps: deps, logger: logger, router: mux.NewRouter(), now: time.Now}
	s.routes()
	return s
}

func (s *ViewServer) routes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/view", s.handleGetView).Methods(http.MethodGet)
	api.HandleFunc("/view/{name}", s.handleSetView).Methods(http.MethodPut)
	api.HandleFunc("/selection/{key}", s.handleSelect).Methods(http.MethodPut)
	api.HandleFunc("/selection", s.handleClearSelection).Methods(http.MethodDelete)
	api.HandleFunc("/submit", s.handleSubmit).Methods(http.MethodPost)
	api.HandleFunc("/settings", s.handleGetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", s.handlePutSettings).Methods(http.MethodPut)
	api.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	s.router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
}

// Router returns the HTTP handler.
func (s *ViewServer) Router() http.Handler { return s.router }

// Attach subscribes to the synchronizer, starting polling. Detach undoes it.
func (s *ViewServer) Attach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		s.sub = s.deps.Sync.Subscribe()
	}
}

// Detach releases the synchronizer subscription.
func (s *ViewServer) Detach() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
}

// ListenAndServe attaches and serves on addr until Shutdown.
func (s *ViewServer) ListenAndServe(addr string) error {
	s.Attach()
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      45 * time.Second,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()
	s.logger.Info("view API listening", "address", addr)
	return srv.ListenAndServe()
}

// Shutdown stops the HTTP server and detaches from the synchronizer.
func (s *ViewServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	defer s.Detach()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// RenderPage renders the current state.
func (s *ViewServer) RenderPage() views.Page {
	s.mu.Lock()
	var rec *settings.Settings
	if s.settings != nil {
		cp := *s.settings
		rec = &cp
	}
	s.mu.Unlock()

	return views.Render(views.Input{
		State:    s.deps.Views.State(),
		Snapshot: s.deps.Sync.Snapshot(),
		Form:     s.deps.Submissions.View(),
		Settings: rec,
		Now:      s.now(),
	})
}

func (s *ViewServer) handleGetView(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.RenderPage())
}

func (s *ViewServer) handleSetView(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.deps.Views.SetView(name); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if s.deps.Views.State().ActiveView == views.ViewSettings {
		if _, err := s.loadSettings(r); err != nil {
			s.logger.Warn("settings load failed", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, s.RenderPage())
}

func (s *ViewServer) handleSelect(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if _, err := s.deps.Views.SelectByKey(s.deps.Sync.Snapshot().Indicators.Value, key); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, s.RenderPage())
}

func (s *ViewServer) handleClearSelection(w http.ResponseWriter, _ *http.Request) {
	s.deps.Views.ClearSelection()
	writeJSON(w, http.StatusOK, s.RenderPage())
}

type submitRequest struct {
	Indicator string `json:"indicator"`
	Type      string `json:"type"`
}

func (s *ViewServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, utils.NewValidationError("submit indicator", "Malformed request body"))
		return
	}
	_, err := s.deps.Submissions.SubmitValue(r.Context(), req.Indicator, req.Type)
	status := http.StatusOK
	switch {
	case err == nil:
	case errors.Is(err, services.ErrSubmissionInFlight):
		writeError(w, http.StatusConflict, err)
		return
	case utils.KindOf(err) == utils.KindValidation:
		status = http.StatusBadRequest
	default:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, s.RenderPage())
}

func (s *ViewServer) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	rec, err := s.loadSettings(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *ViewServer) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var rec settings.Settings
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, utils.NewValidationError("save settings", "Malformed settings body"))
		return
	}
	if err := s.deps.Settings.Save(r.Context(), rec); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.mu.Lock()
	s.settings = &rec
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, rec)
}

func (s *ViewServer) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	started := s.deps.Sync.RefreshIndicators()
	writeJSON(w, http.StatusAccepted, map[string]bool{"started": started})
}

func (s *ViewServer) loadSettings(r *http.Request) (settings.Settings, error) {
	rec, err := s.deps.Settings.Load(r.Context())
	if err != nil {
		return settings.Settings{}, err
	}
	s.mu.Lock()
	s.settings = &rec
	s.mu.Unlock()
	return rec, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{
		"error": utils.UserMessage(err),
		"kind":  string(utils.KindOf(err)),
	})
}
