// Package httpapi serves the local status API: prometheus metrics, health,
// a state dump and the module menus.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nextlevelbuilder/vcwarden/internal/modules"
	"github.com/nextlevelbuilder/vcwarden/internal/notify"
	"github.com/nextlevelbuilder/vcwarden/pkg/protocol"
)

const (
	menuActionTimeout = 15 * time.Second
	shutdownTimeout   = 5 * time.Second
	recentNotices     = 50
)

// Server exposes the application context over HTTP.
type Server struct {
	app      *modules.Context
	gatherer prometheus.Gatherer
	notices  *notify.Local
	token    string
	router   chi.Router
	hub      *hub
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer serves /metrics from g.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithNotices includes recent local notices in /state.
func WithNotices(n *notify.Local) Option {
	return func(s *Server) { s.notices = n }
}

// WithToken requires "Authorization: Bearer <token>" on every route but
// /healthz. Browsers opening /events may pass ?token= instead.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

func New(app *modules.Context, opts ...Option) *Server {
	s := &Server{app: app, hub: newHub()}
	for _, opt := range opts {
		opt(s)
	}
	for _, ev := range streamedEvents {
		app.Registry.On(ev, s.hub.publishEvent)
	}
	if s.notices != nil {
		s.notices.SetSink(s.hub.publishNotice)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		if s.gatherer != nil {
			r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
		}
		r.Get("/state", s.handleState)
		r.Get("/menu/{kind}", s.handleMenu)
		r.Post("/menu/{kind}/{id}", s.handleMenuAction)
		r.Get("/events", s.hub.handle)
	})
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if got == "" {
				got = r.URL.Query().Get("token")
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "protocol": protocol.ProtocolVersion})
}

type queueState struct {
	Priority int `json:"priority"`
	Normal   int `json:"normal"`
	Pending  any `json:"pending"`
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	p, n := s.app.Queue.Len()
	state := map[string]any{
		"local_user_id": s.app.LocalUserID(),
		"modules":       s.app.Registry.Order(),
		"ownership":     s.app.Ownership.All(),
		"members":       s.app.Members.All(),
		"queue":         queueState{Priority: p, Normal: n, Pending: s.app.Queue.Pending()},
		"config":        s.app.Config.MaskedCopy(),
	}
	if ch, ok := s.app.Host.LocalVoiceChannel(); ok {
		state["voice_channel_id"] = ch
	}
	if s.notices != nil {
		state["notices"] = s.notices.Recent(recentNotices)
	}
	writeJSON(w, http.StatusOK, state)
}

func validKind(kind string) bool {
	switch kind {
	case protocol.MenuUser, protocol.MenuChannel, protocol.MenuGuild, protocol.MenuToolbox:
		return true
	}
	return false
}

func menuContext(r *http.Request, kind string) modules.MenuContext {
	q := r.URL.Query()
	return modules.MenuContext{
		Kind:      kind,
		UserID:    q.Get("user_id"),
		ChannelID: q.Get("channel_id"),
		GuildID:   q.Get("guild_id"),
	}
}

func (s *Server) handleMenu(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	if !validKind(kind) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown menu kind"})
		return
	}
	items := s.app.Registry.CollectMenuItems(kind, menuContext(r, kind))
	if items == nil {
		items = []*modules.MenuItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleMenuAction(w http.ResponseWriter, r *http.Request) {
	kind, id := chi.URLParam(r, "kind"), chi.URLParam(r, "id")
	if !validKind(kind) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown menu kind"})
		return
	}
	var item *modules.MenuItem
	for _, it := range s.app.Registry.CollectMenuItems(kind, menuContext(r, kind)) {
		if it.ID == id {
			item = it
			break
		}
	}
	if item == nil || item.Action == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "menu item not available"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), menuActionTimeout)
	defer cancel()
	if err := item.Action(ctx); err != nil {
		slog.Warn("menu action failed", "item", id, "module", item.Module, "error", err)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "item": id})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
