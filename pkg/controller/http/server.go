package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/secmon-lab/bulkdm/pkg/domain/model"
	"github.com/secmon-lab/bulkdm/pkg/usecase"
	"github.com/secmon-lab/bulkdm/pkg/utils/logging"
)

// RosterUseCase is the roster surface exposed over HTTP
type RosterUseCase interface {
	Cached() []model.RosterEntry
	LastSyncedAt() time.Time
	CSVPath() string
	LogPath() string
	Sync(ctx context.Context, force bool) *model.SyncResult
	ReloadFromCSV(ctx context.Context) (*model.Roster, error)
	OpenRosterFile(ctx context.Context) error
	Subscribe(fn usecase.RosterListener) func()
}

// DispatchUseCase is the messaging surface exposed over HTTP
type DispatchUseCase interface {
	SendTo(ctx context.Context, req model.SendRequest) *model.SendReport
	ChooseAttachmentsDir(ctx context.Context, dir string) (*model.AttachmentsDir, error)
}

type Server struct {
	router   *chi.Mux
	roster   RosterUseCase
	dispatch DispatchUseCase
	origins  []string
}

type Options func(*Server)

// WithAllowedOrigins permits websocket upgrades from the given origin
// patterns in addition to same-origin requests
func WithAllowedOrigins(patterns ...string) Options {
	return func(s *Server) {
		s.origins = append(s.origins, patterns...)
	}
}

func New(roster RosterUseCase, dispatch DispatchUseCase, opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		router:   r,
		roster:   roster,
		dispatch: dispatch,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Route("/roster", func(r chi.Router) {
			r.Get("/", s.getRoster)
			r.Post("/sync", s.syncRoster)
			r.Post("/reload", s.reloadRoster)
			r.Post("/open", s.openRoster)
			r.Get("/events", s.rosterEvents)
		})
		r.Post("/send", s.send)
		r.Post("/attachments-dir", s.chooseAttachmentsDir)
		r.Get("/log-path", s.getLogPath)
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logging.Default().Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
