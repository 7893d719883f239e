package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"auditmgt/blob"
	"auditmgt/handlers"
	"auditmgt/middleware"
)

var (
	MethodsGetOnly    = []string{"GET", "OPTIONS"}
	MethodsPostOnly   = []string{"POST", "OPTIONS"}
	MethodsPutOnly    = []string{"PUT", "OPTIONS"}
	MethodsDeleteOnly = []string{"DELETE", "OPTIONS"}
)

const (
	PathAPI     = "/api"
	PathHealth  = "/health"
	PathMetrics = "/metrics"
)

// Deps is everything the router mounts. Files and Metrics are optional.
type Deps struct {
	Audits       *handlers.AuditHandler
	Uploads      *handlers.UploadHandler
	Auth         *handlers.AuthHandler
	Feed         *handlers.FeedHandler
	Health       http.Handler
	Tokens       middleware.TokenValidator
	LoginLimiter *middleware.IPRateLimiter
	Metrics      http.Handler
	Files        http.Handler
}

func RegisterRoutes(r *mux.Router, d Deps) {
	r.Handle(PathHealth, d.Health).Methods(MethodsGetOnly...)
	if d.Metrics != nil {
		r.Handle(PathMetrics, d.Metrics).Methods(MethodsGetOnly...)
	}
	if d.Files != nil {
		r.PathPrefix(blob.LocalPrefix).Handler(d.Files).Methods(MethodsGetOnly...)
	}

	// Public auth routes
	r.HandleFunc("/api/auth/register", d.Auth.Register).Methods(MethodsPostOnly...)
	login := http.HandlerFunc(d.Auth.Login)
	if d.LoginLimiter != nil {
		r.Handle("/api/auth/login", d.LoginLimiter.Limit(login)).Methods(MethodsPostOnly...)
	} else {
		r.Handle("/api/auth/login", login).Methods(MethodsPostOnly...)
	}

	// Change feed authenticates from the query string
	r.HandleFunc("/api/ws", d.Feed.ServeFeed).Methods(MethodsGetOnly...)

	// Upload works with or without a session
	upload := middleware.OptionalAuth(d.Tokens)(http.HandlerFunc(d.Uploads.Upload))
	r.Handle("/api/upload", upload).Methods(MethodsPostOnly...)

	// Protected API routes
	apiRouter := r.PathPrefix(PathAPI).Subrouter()
	apiRouter.Use(middleware.Auth(d.Tokens))

	apiRouter.HandleFunc("/auth/me", d.Auth.Me).Methods(MethodsGetOnly...)

	apiRouter.HandleFunc("/audits", d.Audits.ListAudits).Methods(MethodsGetOnly...)
	apiRouter.HandleFunc("/audits", d.Audits.CreateAudit).Methods(MethodsPostOnly...)
	// stats must be registered before {id} or it would be read as an id
	apiRouter.HandleFunc("/audits/stats", d.Audits.GetStats).Methods(MethodsGetOnly...)
	apiRouter.HandleFunc("/audits/{id}", d.Audits.GetAudit).Methods(MethodsGetOnly...)
	apiRouter.HandleFunc("/audits/{id}", d.Audits.UpdateAudit).Methods(MethodsPutOnly...)
	apiRouter.HandleFunc("/audits/{id}", d.Audits.DeleteAudit).Methods(MethodsDeleteOnly...)
}
