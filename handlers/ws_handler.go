package handlers

import (
	"log/slog"
	"net/http"
	"slices"

	gorillaws "github.com/gorilla/websocket"

	"auditmgt/middleware"
	"auditmgt/utils"
	"auditmgt/websocket"
)

// FeedHandler upgrades authenticated clients onto the audit change feed.
// Browsers cannot set headers on websocket requests, so the token may come
// in the query string.
type FeedHandler struct {
	hub      *websocket.Hub
	tokens   middleware.TokenValidator
	upgrader gorillaws.Upgrader
	logger   *slog.Logger
}

func NewFeedHandler(hub *websocket.Hub, tokens middleware.TokenValidator, allowedOrigins []string, logger *slog.Logger) *FeedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	anyOrigin := slices.Contains(allowedOrigins, "*")
	return &FeedHandler{
		hub:    hub,
		tokens: tokens,
		logger: logger,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || anyOrigin || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

// ServeFeed handles GET /api/ws.
func (h *FeedHandler) ServeFeed(w http.ResponseWriter, r *http.Request) {
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		tokenString = middleware.BearerToken(r)
	}
	if tokenString == "" {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	claims, err := h.tokens.ValidateJWT(tokenString)
	if err != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	h.logger.InfoContext(r.Context(), "change feed connected", "user_id", claims.UserID)
	h.hub.Serve(conn, claims.UserID)
}
