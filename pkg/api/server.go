package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Mindburn-Labs/caseflow/pkg/casestore"
	"github.com/Mindburn-Labs/caseflow/pkg/queue"
	"github.com/Mindburn-Labs/caseflow/pkg/slotregistry"
	"github.com/Mindburn-Labs/caseflow/pkg/store"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Server is the admin API over the orchestrator's stores and queue.
type Server struct {
	cases       *casestore.Store
	registry    *slotregistry.Registry
	queue       *queue.Manager
	procLog     store.ProcessingLog
	deadLetters store.DeadLetterStore

	eventSchema *jsonschema.Schema
	logger      *slog.Logger
}

// Options carries the middleware settings applied by Handler.
type Options struct {
	JWTSecret      string
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewServer constructs the admin server.
func NewServer(cases *casestore.Store, registry *slotregistry.Registry, q *queue.Manager, procLog store.ProcessingLog, deadLetters store.DeadLetterStore) (*Server, error) {
	schema, err := compileEventSchema()
	if err != nil {
		return nil, fmt.Errorf("compile event schema: %w", err)
	}
	return &Server{
		cases:       cases,
		registry:    registry,
		queue:       q,
		procLog:     procLog,
		deadLetters: deadLetters,
		eventSchema: schema,
		logger:      slog.Default().With("component", "api"),
	}, nil
}

// Handler returns the fully wired route tree with auth and rate limiting.
func (s *Server) Handler(opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/events", s.handleInjectEvent)
	mux.HandleFunc("GET /v1/cases/{id}", s.handleGetCase)
	mux.HandleFunc("GET /v1/cases/{id}/log", s.handleCaseLog)
	mux.HandleFunc("POST /v1/cases/{id}/reset", s.handleResetCase)
	mux.HandleFunc("GET /v1/deadletters", s.handleListDeadLetters)
	mux.HandleFunc("POST /v1/deadletters/{id}/replay", s.handleReplayDeadLetter)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	var h http.Handler = mux
	h = NewAuthMiddleware(opts.JWTSecret)(h)
	if opts.RateLimitRPS > 0 {
		rl := NewGlobalRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst)
		h = rl.Middleware(h)
	}
	return h
}
