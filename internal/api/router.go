package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-request-desk/internal/account"
	"github.com/hackgods/clinic-request-desk/internal/appointment"
)

type RequestService interface {
	Requests(ctx context.Context, f appointment.Filter) ([]appointment.BoardEntry, error)
	Refresh(ctx context.Context) ([]appointment.BoardEntry, error)
	SubmitRequest(ctx context.Context, in appointment.NewRequest) (*appointment.Request, error)
	AcceptRequest(ctx context.Context, id int64) (*appointment.AcceptResult, error)
	RejectRequest(ctx context.Context, id int64) (*appointment.ClassifiedRequest, error)
	ResolveConflict(ctx context.Context, id int64) (*appointment.ClassifiedRequest, error)
}

type AccountService interface {
	Register(ctx context.Context, in account.Registration) (*account.Account, error)
	Login(ctx context.Context, username, password string) (*account.Session, error)
	Authenticate(raw string) (*account.Claims, error)
}

type RouterConfig struct {
	Requests      RequestService
	Accounts      AccountService
	PostgresCheck Check
	RedisCheck    Check
	Logger        zerolog.Logger
	Env           string
	Version       string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoveryMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PostgresCheck, cfg.RedisCheck, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Post("/auth/register", registerHandler(cfg.Accounts))
	r.Post("/auth/login", loginHandler(cfg.Accounts))

	// intake is public; the desk is staff only
	r.Post("/requests", submitRequestHandler(cfg.Requests))

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(cfg.Accounts))

		r.Get("/requests", listRequestsHandler(cfg.Requests))
		r.Post("/requests/{id}/accept", acceptRequestHandler(cfg.Requests))
		r.Post("/requests/{id}/reject", rejectRequestHandler(cfg.Requests))
		r.Post("/requests/{id}/resolve", resolveConflictHandler(cfg.Requests))
	})

	return r
}
