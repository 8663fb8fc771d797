package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/workout"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Store is the data layer behind the REST API. *storage.DB satisfies it.
type Store interface {
	workout.Store
	UserStore

	GetUser(ctx context.Context, userID int) (*models.User, error)

	ListRoutines(ctx context.Context, userID int) ([]models.Routine, error)
	CreateRoutine(ctx context.Context, r *models.Routine) error
	DeleteRoutine(ctx context.Context, userID int, routineID uuid.UUID) error

	GetSession(ctx context.Context, userID int, sessionID uuid.UUID) (*models.WorkoutSession, error)
	QuerySessions(ctx context.Context, start, end time.Time, userID int) ([]models.WorkoutSession, error)
	GetSet(ctx context.Context, userID int, setID uuid.UUID) (*models.ExerciseSet, error)
	GetTrainingSummary(ctx context.Context, start, end time.Time, bucket string, userID int) ([]models.TrainingSummaryPeriod, error)
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	store    Store
	log      *slog.Logger
	identity func(http.Handler) http.Handler
	tracer   trace.Tracer
	mcp      http.Handler
	router   chi.Router
}

// New creates a Server. Until SetTailscale is called every request runs as
// the development identity.
func New(store Store, log *slog.Logger) *Server {
	s := &Server{
		store:    store,
		log:      log,
		identity: DevIdentity,
		tracer:   noop.NewTracerProvider().Tracer("server"),
	}
	s.routes()
	return s
}

// SetTailscale resolves request identity through the tailnet.
func (s *Server) SetTailscale(who WhoIser) {
	s.identity = TailscaleIdentity(who, s.store, s.log)
	s.routes()
}

// SetTracer records one server span per request.
func (s *Server) SetTracer(t trace.Tracer) {
	s.tracer = t
	s.routes()
}

// SetMCP mounts an MCP handler at /mcp behind the identity middleware.
func (s *Server) SetMCP(h http.Handler) {
	s.mcp = h
	s.routes()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(RequestLogging(s.log))
	r.Use(Tracing(s.tracer))
	r.Use(CORS)

	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.identity)

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/me", s.handleMe)

			r.Get("/routines", s.handleListRoutines)
			r.Post("/routines", s.handleCreateRoutine)
			r.Get("/routines/{id}", s.handleGetRoutine)
			r.Delete("/routines/{id}", s.handleDeleteRoutine)

			r.Get("/sessions", s.handleListSessions)
			r.Post("/sessions", s.handleCreateSession)
			r.Get("/sessions/active", s.handleActiveSession)
			r.Get("/sessions/{id}", s.handleGetSession)
			r.Patch("/sessions/{id}", s.handleUpdateSession)
			r.Get("/sessions/{id}/sets", s.handleListSets)
			r.Post("/sessions/{id}/sets", s.handleCreateSet)

			r.Patch("/sets/{id}", s.handleUpdateSet)
			r.Delete("/sets/{id}", s.handleDeleteSet)

			r.Get("/summary", s.handleTrainingSummary)
		})

		if s.mcp != nil {
			r.Handle("/mcp", s.mcp)
		}
	})

	s.router = r
}
