package handlers

import (
	"context"
	"net/http"
	"time"

	"auditmgt/utils"
)

// HealthCheckResponse represents health check status
type HealthCheckResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
}

// Version is stamped at build time with -ldflags "-X auditmgt/handlers.Version=...".
var Version = "dev"

var startTime = time.Now()

// HealthCheck reports 200 while the database answers pings and 503 otherwise.
func HealthCheck(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := HealthCheckResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC(),
			Database:  "connected",
			Version:   Version,
			Uptime:    time.Since(startTime).Round(time.Second).String(),
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		code := http.StatusOK
		if err := ping(ctx); err != nil {
			response.Status = "unhealthy"
			response.Database = "disconnected"
			code = http.StatusServiceUnavailable
		}
		utils.RespondWithJSON(w, code, response)
	}
}
